package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/flatquery/internal/domain"
	"github.com/conduit-lang/flatquery/internal/engine"
	"github.com/conduit-lang/flatquery/internal/orm/codegen"
	"github.com/conduit-lang/flatquery/internal/orm/sqlstore"
	"github.com/conduit-lang/flatquery/internal/web/middleware"
)

const seed = `
INSERT INTO organisations (id, name, industry, found_year) VALUES (1, 'Acme', 'Tech', 1999);
INSERT INTO departments (id, name, budget, head, organisation_id) VALUES
  (1, 'R&D', 1000.5, NULL, 1),
  (2, 'Sales', 500, 'Grace', 1);
INSERT INTO roles (id, title, level, description) VALUES (1, 'Engineer', 2, NULL);
INSERT INTO employees (id, first_name, last_name, email, department_id, role_id) VALUES
  (1, 'Ada', 'Lovelace', 'ada@acme.test', 1, 1),
  (2, 'Alan', 'Turing', 'alan@acme.test', 1, 1),
  (3, 'Grace', 'Hopper', 'grace@acme.test', 2, 1);
`

type fixture struct {
	handler http.Handler
	db      *sql.DB
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	registry, err := domain.Registry()
	require.NoError(t, err)

	db, dialect, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ddl, err := codegen.NewDDLGenerator(dialect).GenerateSchema(registry)
	require.NoError(t, err)
	_, err = db.Exec(ddl)
	require.NoError(t, err)
	_, err = db.Exec(seed)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	eng, err := engine.New(registry, sqlstore.New(db, dialect), engine.WithMetrics(engine.NewMetrics(reg)))
	require.NoError(t, err)

	if opts.Gatherer == nil {
		opts.Gatherer = reg
	}
	if opts.Pinger == nil {
		opts.Pinger = db
	}
	return &fixture{handler: NewRouter(eng, opts), db: db}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && strings.HasPrefix(rec.Body.String(), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestPostQuery(t *testing.T) {
	f := newFixture(t, Options{})

	rec, body := f.do(t, http.MethodPost, "/query",
		`{"entity":"Employee","fields":["firstName","department.name"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, float64(3), body["totalCount"])
	assert.Equal(t, float64(1), body["actualDepth"])
	assert.Equal(t, []interface{}{"firstName", "department.name"}, body["fields"])
	assert.Contains(t, rec.Body.String(),
		`"rows":[{"firstName":"Grace","department_name":"Sales"},{"firstName":"Ada","department_name":"R&D"},{"firstName":"Alan","department_name":"R&D"}]`)

	diagnostics, ok := body["diagnostics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "lastName ASC, firstName ASC", diagnostics["sort"])
}

func TestGetQuery(t *testing.T) {
	f := newFixture(t, Options{})

	params := url.Values{
		"entity":  {"Employee"},
		"fields":  {"firstName,lastName", "email"},
		"where":   {"department.name = 'R&D'"},
		"orderBy": {"-firstName"},
		"first":   {"1"},
	}
	rec, body := f.do(t, http.MethodGet, "/query?"+params.Encode(), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), body["totalCount"])
	assert.Contains(t, rec.Body.String(), `"rows":[{"firstName":"Alan","lastName":"Turing","email":"alan@acme.test"}]`)
}

func TestQueryErrors(t *testing.T) {
	f := newFixture(t, Options{})

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		error  string
	}{
		{"unknown entity", http.MethodPost, "/query", `{"entity":"Nope","fields":["id"]}`, http.StatusBadRequest, "unknown entity: Nope"},
		{"unknown property", http.MethodPost, "/query", `{"entity":"Employee","fields":["salary"]}`, http.StatusBadRequest, "unknown property"},
		{"no fields", http.MethodPost, "/query", `{"entity":"Employee","fields":[]}`, http.StatusBadRequest, ""},
		{"bad filter", http.MethodPost, "/query", `{"entity":"Employee","fields":["id"],"where":"id =="}`, http.StatusBadRequest, ""},
		{"malformed body", http.MethodPost, "/query", `{"entity":`, http.StatusBadRequest, "invalid request body"},
		{"unknown body field", http.MethodPost, "/query", `{"entity":"Employee","fields":["id"],"limit":3}`, http.StatusBadRequest, "invalid request body"},
		{"non-numeric first", http.MethodGet, "/query?entity=Employee&fields=id&first=many", "", http.StatusBadRequest, "first must be an integer"},
		{"non-numeric depth", http.MethodGet, "/query?entity=Employee&fields=id&maxDepth=deep", "", http.StatusBadRequest, "maxDepth must be an integer"},
		{"zero first", http.MethodGet, "/query?entity=Employee&fields=id&first=0", "", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.Len(t, body, 1, "failure bodies carry only the error")
			msg, _ := body["error"].(string)
			assert.NotEmpty(t, msg)
			if tt.error != "" {
				assert.Contains(t, msg, tt.error)
			}
		})
	}
}

func TestQueryRateLimit(t *testing.T) {
	f := newFixture(t, Options{Limiter: middleware.NewTokenBucket(1, time.Minute)})

	rec, _ := f.do(t, http.MethodGet, "/query?entity=Role&fields=title", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body := f.do(t, http.MethodPost, "/query", `{"entity":"Role","fields":["title"]}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", body["error"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec, _ = f.do(t, http.MethodGet, "/entities", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStoreFailureIsBadGateway(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.db.Exec("DROP TABLE employees")
	require.NoError(t, err)

	rec, body := f.do(t, http.MethodPost, "/query", `{"entity":"Employee","fields":["firstName"]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, body["error"], "employees")
}

func TestEntities(t *testing.T) {
	f := newFixture(t, Options{})

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entities", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []entitySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, len(domain.Declarations()))
	assert.Equal(t, "Certification", list[0].Name)

	rec, body := f.do(t, http.MethodGet, "/entities/Employee", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "employees", body["table"])
	assert.Equal(t, []interface{}{"lastName ASC", "firstName ASC"}, body["defaultSort"])
	assert.Contains(t, rec.Body.String(), `"joinTable":"employee_skills"`)
	assert.Equal(t, []interface{}{
		"Certification", "Department", "Project", "Role", "Schedule", "Skill", "Task", "Team",
	}, body["neighbours"])

	rec, body = f.do(t, http.MethodGet, "/entities/Nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown entity: Nope", body["error"])
}

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("database is locked") }

func TestHealthz(t *testing.T) {
	f := newFixture(t, Options{})
	rec, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	f = newFixture(t, Options{Pinger: failingPinger{}})
	rec, body = f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "database is locked", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	f.do(t, http.MethodPost, "/query", `{"entity":"Employee","fields":["firstName"]}`)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `flatquery_queries_total{entity="Employee",outcome="ok"} 1`)
}

func TestPrefixAndFallbacks(t *testing.T) {
	f := newFixture(t, Options{Prefix: "/api"})

	rec, _ := f.do(t, http.MethodPost, "/api/query", `{"entity":"Role","fields":["title"]}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body := f.do(t, http.MethodPost, "/query", `{"entity":"Role","fields":["title"]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", body["error"])

	rec, body = f.do(t, http.MethodDelete, "/api/query", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method not allowed", body["error"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(&engine.Error{Kind: engine.KindNotANavigation, Err: errors.New("x")}))
	assert.Equal(t, http.StatusBadGateway, StatusFor(&engine.Error{Kind: engine.KindStoreExecution, Err: errors.New("x")}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("plain")))
}
