package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/flatquery/internal/domain"
	"github.com/conduit-lang/flatquery/internal/orm/codegen"
	"github.com/conduit-lang/flatquery/internal/orm/query"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
	"github.com/conduit-lang/flatquery/internal/orm/sqlstore"
)

type stubStore struct {
	records []query.Record
	err     error
	panics  bool
	plan    *query.Plan
}

func (s *stubStore) Prepare(plan *query.Plan) (query.Statement, error) {
	s.plan = plan
	return stubStatement{s}, nil
}

type stubStatement struct{ s *stubStore }

func (st stubStatement) Query(context.Context) ([]query.Record, error) {
	if st.s.panics {
		panic("driver exploded")
	}
	return st.s.records, st.s.err
}

func (stubStatement) String() string { return "stub statement" }

func newStubEngine(t *testing.T, store *stubStore, opts ...Option) *Engine {
	t.Helper()
	registry, err := domain.Registry()
	require.NoError(t, err)
	eng, err := New(registry, store, opts...)
	require.NoError(t, err)
	return eng
}

func TestExecute(t *testing.T) {
	store := &stubStore{records: []query.Record{
		{"firstName": "Ada", "lastName": "Lovelace", "department": query.Record{"name": "R&D"}},
		{"firstName": "Grace", "lastName": "Hopper", "department": query.Record{"name": nil}},
	}}
	eng := newStubEngine(t, store)

	res, err := eng.Execute(context.Background(), Request{
		Entity: "Employee",
		Fields: []string{"firstName", "lastName", "department.name"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, []string{"firstName", "lastName", "department.name"}, res.Fields)
	assert.Equal(t, 1, res.ActualDepth)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []string{"firstName", "lastName", "department_name"}, res.Rows[0].Keys())
	assert.Equal(t, []interface{}{"Grace", "Hopper", nil}, res.Rows[1].Values())

	require.NotNil(t, res.Diagnostics)
	assert.Equal(t, "firstName AS firstName, lastName AS lastName, department.name AS department_name", res.Diagnostics.Projection)
	assert.Equal(t, "", res.Diagnostics.Filter)
	assert.Equal(t, "lastName ASC, firstName ASC", res.Diagnostics.Sort)
	assert.Equal(t, "stub statement", res.Diagnostics.Statement)
	assert.Equal(t, 0, store.plan.Limit)
	assert.Equal(t, 3, store.plan.Selection.MaxDepth)
}

func TestExecuteBoundaryClamping(t *testing.T) {
	store := &stubStore{}
	eng := newStubEngine(t, store, WithDiagnostics(false))

	res, err := eng.Execute(context.Background(), Request{
		Entity:   "Employee",
		Fields:   []string{"firstName"},
		First:    Int(5000),
		MaxDepth: Int(9),
	})
	require.NoError(t, err)
	assert.Nil(t, res.Diagnostics)
	assert.NotNil(t, res.Rows)
	assert.Equal(t, 0, res.TotalCount)
	assert.Equal(t, MaxFirst, store.plan.Limit)
	assert.Equal(t, 5, store.plan.Selection.MaxDepth)

	_, err = eng.Execute(context.Background(), Request{Entity: "Employee", Fields: []string{"firstName"}, First: Int(1000), MaxDepth: Int(1)})
	require.NoError(t, err)
	assert.Equal(t, 1000, store.plan.Limit)
	assert.Equal(t, 1, store.plan.Selection.MaxDepth)
}

func TestExecuteErrorKinds(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		store stubStore
		kind  Kind
	}{
		{"blank entity", Request{Entity: "  ", Fields: []string{"firstName"}}, stubStore{}, KindInputValidation},
		{"no fields", Request{Entity: "Employee"}, stubStore{}, KindInputValidation},
		{"only blank fields", Request{Entity: "Employee", Fields: []string{"", " "}}, stubStore{}, KindInputValidation},
		{"first below one", Request{Entity: "Employee", Fields: []string{"firstName"}, First: Int(0)}, stubStore{}, KindInputValidation},
		{"depth below one", Request{Entity: "Employee", Fields: []string{"firstName"}, MaxDepth: Int(0)}, stubStore{}, KindInputValidation},
		{"blank field among others", Request{Entity: "Employee", Fields: []string{"firstName", "  "}}, stubStore{}, KindInputValidation},
		{"path deeper than max depth", Request{Entity: "Employee", Fields: []string{"department.organisation.name"}, MaxDepth: Int(1)}, stubStore{}, KindInputValidation},
		{"unknown entity", Request{Entity: "Spaceship", Fields: []string{"name"}}, stubStore{}, KindUnknownEntity},
		{"unknown property", Request{Entity: "Employee", Fields: []string{"salary"}}, stubStore{}, KindUnknownProperty},
		{"scalar used as navigation", Request{Entity: "Employee", Fields: []string{"firstName.length"}}, stubStore{}, KindNotANavigation},
		{"bad filter", Request{Entity: "Employee", Fields: []string{"firstName"}, Where: "firstName =="}, stubStore{}, KindPlanComposition},
		{"filter on unknown path", Request{Entity: "Employee", Fields: []string{"firstName"}, Where: "salary > 1"}, stubStore{}, KindPlanComposition},
		{"bad sort", Request{Entity: "Employee", Fields: []string{"firstName"}, OrderBy: "tasks.title"}, stubStore{}, KindPlanComposition},
		{"store failure", Request{Entity: "Employee", Fields: []string{"firstName"}}, stubStore{err: sqlstore.ErrExecution}, KindStoreExecution},
		{"store panic", Request{Entity: "Employee", Fields: []string{"firstName"}}, stubStore{panics: true}, KindUnexpected},
		{"record shape", Request{Entity: "Employee", Fields: []string{"firstName", "skills.name"}}, stubStore{records: []query.Record{{"firstName": "Ada", "skills": 3}}}, KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.store
			eng := newStubEngine(t, &store)

			res, err := eng.Execute(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.kind, KindOf(err))

			folded := eng.Run(context.Background(), tt.req)
			assert.NotEmpty(t, folded.Error)
			assert.Nil(t, folded.Rows)
		})
	}
}

func TestUnexpectedErrorsAreGeneric(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	eng := newStubEngine(t, &stubStore{panics: true}, WithLogger(zap.New(core)))

	res := eng.Run(context.Background(), Request{Entity: "Employee", Fields: []string{"firstName"}})
	assert.Equal(t, "unexpected error while executing query", res.Error)
	assert.NotContains(t, res.Error, "driver exploded")

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "unexpected error while executing query"}`, string(out))

	assert.Equal(t, 1, logs.FilterMessage("query panicked").Len())
	assert.Equal(t, 1, logs.FilterMessage("query failed").Len())
}

func TestErrorsKeepSentinels(t *testing.T) {
	eng := newStubEngine(t, &stubStore{err: errors.New("boom")})

	_, err := eng.Execute(context.Background(), Request{Entity: "Employee", Fields: []string{"salary"}})
	assert.ErrorIs(t, err, schema.ErrUnknownProperty)
	assert.Contains(t, err.Error(), "salary")

	_, err = eng.Execute(context.Background(), Request{Entity: "Employee", Fields: []string{"firstName"}, Where: "salary > 1"})
	assert.ErrorIs(t, err, query.ErrComposition)
	assert.ErrorIs(t, err, schema.ErrUnknownProperty)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	eng := newStubEngine(t, &stubStore{records: []query.Record{{"title": "Engineer"}}}, WithMetrics(metrics))

	eng.Run(context.Background(), Request{Entity: "Role", Fields: []string{"title"}})
	eng.Run(context.Background(), Request{Entity: "Role", Fields: []string{"title"}})
	eng.Run(context.Background(), Request{Entity: "Role", Fields: []string{"nope"}})
	eng.Run(context.Background(), Request{Entity: "Nope", Fields: []string{"title"}})

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues("Role", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues("Role", "UnknownProperty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues("_unknown", "UnknownEntity")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.QueryDuration))
}

func TestNewRejectsInvalidDefaults(t *testing.T) {
	decls := domain.Declarations()
	for i := range decls {
		if decls[i].Name == "Team" {
			decls[i].Annotations = append(decls[i].Annotations, schema.OrderBy("members.firstName"))
		}
	}
	_, err := schema.Build(decls...)
	require.Error(t, err, "sorting through a collection is rejected at build time")

	decls = domain.Declarations()
	for i := range decls {
		if decls[i].Name == "Team" {
			decls[i].Annotations = append(decls[i].Annotations, schema.Where("headcount > 3"))
		}
	}
	registry, err := schema.Build(decls...)
	require.NoError(t, err)

	_, err = New(registry, &stubStore{})
	assert.ErrorIs(t, err, schema.ErrUnknownProperty)

	_, err = New(nil, &stubStore{})
	assert.Error(t, err)
}

const engineSeed = `
INSERT INTO organisations (id, name, industry, found_year) VALUES (1, 'Acme', 'Tech', 1999);
INSERT INTO departments (id, name, budget, head, organisation_id) VALUES (1, 'R&D', 1000, NULL, 1);
INSERT INTO roles (id, title, level, description) VALUES (1, 'Engineer', 2, NULL);
INSERT INTO employees (id, first_name, last_name, email, department_id, role_id) VALUES
  (1, 'Ada', 'Lovelace', 'ada@acme.test', 1, 1),
  (2, 'Alan', 'Turing', 'alan@acme.test', 1, 1);
INSERT INTO certifications (id, name, issuer, valid_until, employee_id) VALUES
  (1, 'AWS', 'Amazon', '2099-01-01 00:00:00', 1),
  (2, 'Legacy', 'Old Corp', '2001-01-01 00:00:00', 1);
`

func TestRunAgainstSQLite(t *testing.T) {
	registry, err := domain.Registry()
	require.NoError(t, err)

	ctx := context.Background()
	db, dialect, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	ddl, err := codegen.NewDDLGenerator(dialect).GenerateSchema(registry)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, ddl+engineSeed)
	require.NoError(t, err)

	eng, err := New(registry, sqlstore.New(db, dialect))
	require.NoError(t, err)

	res := eng.Run(ctx, Request{
		Entity: "Employee",
		Fields: []string{"firstName", "department.name", "certifications.name"},
	})
	require.Empty(t, res.Error)
	require.Equal(t, 1, res.TotalCount)
	assert.Equal(t, []interface{}{"Ada", "R&D", "AWS"}, res.Rows[0].Values())
	assert.Equal(t, "certifications[validUntil >= now()]", res.Diagnostics.Filter)
	assert.Contains(t, res.Diagnostics.Statement, `INNER JOIN "certifications" t2`)

	res = eng.Run(ctx, Request{
		Entity:  "Employee",
		Fields:  []string{"firstName", "certifications.name"},
		Where:   "certifications.issuer = 'Old Corp'",
		OrderBy: "-firstName",
		First:   Int(10),
	})
	require.Empty(t, res.Error)
	require.Equal(t, 1, res.TotalCount)
	assert.Equal(t, []interface{}{"Ada", "Legacy"}, res.Rows[0].Values())

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"rows":[{"firstName":"Ada","certifications_name":"Legacy"}]`)
	assert.Contains(t, string(out), `"totalCount":1`)
}
