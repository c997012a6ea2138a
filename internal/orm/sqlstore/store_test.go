package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/flatquery/internal/domain"
	"github.com/conduit-lang/flatquery/internal/orm/fieldspec"
	"github.com/conduit-lang/flatquery/internal/orm/query"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

type storeFixture struct {
	registry *schema.Registry
	mock     sqlmock.Sqlmock
	store    *Store
}

func newStoreFixture(t *testing.T, dialect Dialect) *storeFixture {
	t.Helper()
	registry, err := domain.Registry()
	require.NoError(t, err)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &storeFixture{
		registry: registry,
		mock:     mock,
		store:    New(db, dialect),
	}
}

func (f *storeFixture) prepare(t *testing.T, entity string, fields []string, filter, sort string, limit int) *Statement {
	t.Helper()
	sel, err := fieldspec.NewParser(f.registry).Parse(entity, fields, fieldspec.DefaultDepth)
	require.NoError(t, err)
	plan, err := query.NewComposer(f.registry, f.store).Compose(entity, sel, filter, sort, limit)
	require.NoError(t, err)
	stmt, ok := plan.Statement.(*Statement)
	require.True(t, ok)
	return stmt
}

func TestPrepareSQL(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		entity  string
		fields  []string
		filter  string
		sort    string
		limit   int
		sql     string
		args    []interface{}
	}{
		{
			name:    "single-valued navigation",
			dialect: SQLite,
			entity:  "Employee",
			fields:  []string{"firstName", "lastName", "department.name"},
			sql: `SELECT t0."first_name" AS "firstName", t0."last_name" AS "lastName", t1."name" AS "department_name" ` +
				`FROM "employees" t0 LEFT JOIN "departments" t1 ON t1."id" = t0."department_id" ` +
				`ORDER BY t0."last_name" ASC, t0."first_name" ASC`,
		},
		{
			name:    "collection default filter",
			dialect: Postgres,
			entity:  "Employee",
			fields:  []string{"firstName", "certifications.name"},
			sql: `SELECT t0."first_name" AS "firstName", t1."name" AS "certifications_name" ` +
				`FROM "employees" t0 INNER JOIN "certifications" t1 ON t1."employee_id" = t0."id" ` +
				`WHERE t1."valid_until" >= NOW() ` +
				`ORDER BY t0."last_name" ASC, t0."first_name" ASC, t1."valid_until" DESC`,
		},
		{
			name:    "explicit filter joins unselected navigation",
			dialect: Postgres,
			entity:  "Employee",
			fields:  []string{"firstName", "certifications.name"},
			filter:  "department.name = 'R&D' AND lastName ilike 'a%'",
			limit:   10,
			sql: `SELECT t0."first_name" AS "firstName", t1."name" AS "certifications_name" ` +
				`FROM "employees" t0 INNER JOIN "certifications" t1 ON t1."employee_id" = t0."id" ` +
				`LEFT JOIN "departments" t2 ON t2."id" = t0."department_id" ` +
				`WHERE t2."name" = $1 AND t0."last_name" ILIKE $2 ` +
				`ORDER BY t0."last_name" ASC, t0."first_name" ASC, t1."valid_until" DESC LIMIT 10`,
			args: []interface{}{"R&D", "a%"},
		},
		{
			name:    "many-to-many through join table",
			dialect: SQLite,
			entity:  "Employee",
			fields:  []string{"firstName", "skills.name"},
			sql: `SELECT t0."first_name" AS "firstName", t1."name" AS "skills_name" ` +
				`FROM "employees" t0 INNER JOIN "employee_skills" j0 ON j0."employee_id" = t0."id" ` +
				`INNER JOIN "skills" t1 ON t1."id" = j0."skill_id" ` +
				`ORDER BY t0."last_name" ASC, t0."first_name" ASC, t1."id" ASC`,
		},
		{
			name:    "operators",
			dialect: SQLite,
			entity:  "Employee",
			fields:  []string{"firstName"},
			filter:  "lastName in ('A', 'B') and not (role.level between 1 and 3 or email is null) and email ilike '%x%'",
			sort:    "-role.title",
			sql: `SELECT t0."first_name" AS "firstName" FROM "employees" t0 ` +
				`LEFT JOIN "roles" t1 ON t1."id" = t0."role_id" ` +
				`WHERE t0."last_name" IN (?, ?) AND NOT (t1."level" BETWEEN ? AND ? OR t0."email" IS NULL) ` +
				`AND LOWER(t0."email") LIKE LOWER(?) ` +
				`ORDER BY t1."title" DESC`,
			args: []interface{}{"A", "B", int64(1), int64(3), "%x%"},
		},
		{
			name:    "root default filter with or",
			dialect: DuckDB,
			entity:  "Certification",
			fields:  []string{"name"},
			filter:  "issuer = 'AWS' or issuer != 'GCP'",
			sql: `SELECT t0."name" AS "name" FROM "certifications" t0 ` +
				`WHERE t0."issuer" = ? OR t0."issuer" <> ? ` +
				`ORDER BY t0."valid_until" DESC`,
			args: []interface{}{"AWS", "GCP"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStoreFixture(t, tt.dialect)
			stmt := f.prepare(t, tt.entity, tt.fields, tt.filter, tt.sort, tt.limit)
			assert.Equal(t, tt.sql, stmt.SQL())
			assert.Equal(t, stmt.SQL(), stmt.String())
			if tt.args == nil {
				assert.Empty(t, stmt.Args())
			} else {
				assert.Equal(t, tt.args, stmt.Args())
			}
		})
	}
}

func TestPrepareScopedFiltersAreParenthesised(t *testing.T) {
	f := newStoreFixture(t, Postgres)
	stmt := f.prepare(t, "Certification", []string{"name", "employee.certifications.name"}, "", "", 0)

	assert.Contains(t, stmt.SQL(), `WHERE (t0."valid_until" >= NOW()) AND (t2."valid_until" >= NOW())`)
}

func TestPrepareRejectsPlans(t *testing.T) {
	f := newStoreFixture(t, SQLite)
	employee, err := f.registry.Lookup("Employee")
	require.NoError(t, err)

	_, err = f.store.Prepare(&query.Plan{Entity: employee, Root: &query.Relation{Entity: employee}})
	assert.ErrorIs(t, err, ErrUnsupportedPlan)
	assert.ErrorContains(t, err, "empty projection")

	_, err = f.store.Prepare(nil)
	assert.ErrorIs(t, err, ErrUnsupportedPlan)

	prop, err := employee.Scalar("firstName")
	require.NoError(t, err)
	root := &query.Relation{Entity: employee}
	col := &query.Column{Path: "firstName", Alias: "firstName", Property: prop, Relation: root}
	_, err = f.store.Prepare(&query.Plan{
		Entity:  employee,
		Root:    root,
		Columns: []*query.Column{col},
		Filter:  &query.Comparison{Left: &query.PathRef{Segments: []string{"firstName"}}, Op: query.OpEqual, Values: []*query.Literal{{Kind: query.LitString, Value: "Ada"}}},
	})
	assert.ErrorIs(t, err, ErrUnsupportedPlan)
	assert.ErrorContains(t, err, "unresolved path")
}

func TestStatementQueryReshapesRows(t *testing.T) {
	f := newStoreFixture(t, SQLite)
	stmt := f.prepare(t, "Employee", []string{"firstName", "department.name", "certifications.name"}, "", "", 0)

	rows := sqlmock.NewRows([]string{"firstName", "department_name", "certifications_name"}).
		AddRow([]byte("Ada"), "R&D", "AWS").
		AddRow("Ada", nil, "GCP")
	f.mock.ExpectQuery(stmt.SQL()).WillReturnRows(rows)

	records, err := stmt.Query(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, query.Record{
		"firstName":      "Ada",
		"department":     query.Record{"name": "R&D"},
		"certifications": []query.Record{{"name": "AWS"}},
	}, records[0])
	assert.Equal(t, query.Record{
		"firstName":      "Ada",
		"department":     query.Record{"name": nil},
		"certifications": []query.Record{{"name": "GCP"}},
	}, records[1])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStatementQueryBindsArgs(t *testing.T) {
	f := newStoreFixture(t, Postgres)
	stmt := f.prepare(t, "Role", []string{"title"}, "level >= 2", "", 0)

	f.mock.ExpectQuery(stmt.SQL()).
		WithArgs(driver.Value(int64(2))).
		WillReturnRows(sqlmock.NewRows([]string{"title"}))

	records, err := stmt.Query(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStatementQueryErrors(t *testing.T) {
	t.Run("postgres error", func(t *testing.T) {
		f := newStoreFixture(t, Postgres)
		stmt := f.prepare(t, "Role", []string{"title"}, "", "", 0)
		f.mock.ExpectQuery(stmt.SQL()).
			WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "roles" does not exist`})

		_, err := stmt.Query(context.Background())
		assert.ErrorIs(t, err, ErrExecution)
		assert.ErrorContains(t, err, "42P01")
	})

	t.Run("scan error", func(t *testing.T) {
		f := newStoreFixture(t, SQLite)
		stmt := f.prepare(t, "Role", []string{"title", "level"}, "", "", 0)
		f.mock.ExpectQuery(stmt.SQL()).
			WillReturnRows(sqlmock.NewRows([]string{"title", "level"}).
				AddRow("Engineer", 2).
				RowError(0, errors.New("connection reset")))

		_, err := stmt.Query(context.Background())
		assert.ErrorIs(t, err, ErrExecution)
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newStoreFixture(t, SQLite)
		stmt := f.prepare(t, "Role", []string{"title"}, "", "", 0)
		f.mock.ExpectQuery(stmt.SQL()).WillReturnError(context.Canceled)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := stmt.Query(ctx)
		assert.ErrorIs(t, err, ErrExecution)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDialects(t *testing.T) {
	for _, name := range []string{"sqlite", "sqlite3", "postgres", "pgx", "duckdb"} {
		d, err := DialectByName(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, d.Name())
	}
	_, err := DialectByName("oracle")
	assert.Error(t, err)

	_, err = DialectForDriver("mysql")
	assert.Error(t, err)

	assert.Equal(t, `"a""b"`, SQLite.Quote(`a"b`))
	assert.Equal(t, `"a""b"`, Postgres.Quote(`a"b`))
	assert.Equal(t, "$3", Postgres.Placeholder(3))
	assert.Equal(t, "?", DuckDB.Placeholder(3))
	assert.Equal(t, "x ILIKE $1", Postgres.ILike("x", "$1"))
	assert.Equal(t, "LOWER(x) LIKE LOWER(?)", SQLite.ILike("x", "?"))
}
