package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/flatquery/internal/domain"
	"github.com/conduit-lang/flatquery/internal/engine"
	"github.com/conduit-lang/flatquery/internal/orm/codegen"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
	"github.com/conduit-lang/flatquery/internal/orm/sqlstore"
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

// seededConfig writes a SQLite database with the sample schema and a config
// file pointing at it, and returns the config path
func seededConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "flatquery.db")

	registry, err := domain.Registry()
	require.NoError(t, err)
	db, dialect, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, dbPath)
	require.NoError(t, err)
	ddl, err := codegen.NewDDLGenerator(dialect).GenerateSchema(registry)
	require.NoError(t, err)
	_, err = db.Exec(ddl)
	require.NoError(t, err)
	_, err = db.Exec(seed)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	return writeConfig(t, dir, "database:\n  driver: sqlite3\n  url: "+dbPath+"\n")
}

func writeConfig(t *testing.T, dir, database string) string {
	t.Helper()
	path := filepath.Join(dir, "flatquery.yaml")
	content := database + "log:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath, "--no-color"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "flatquery", cmd.Use)
	assert.NotEmpty(t, cmd.Long)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"version", "query", "explore", "entities", "ddl", "serve"} {
		assert.Contains(t, names, expected)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	defer func() { Version = "dev" }()

	stdout, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "flatquery version: 1.0.0-test")
	assert.Contains(t, stdout, "Go version: go")
}

func TestQueryCommand(t *testing.T) {
	cfg := seededConfig(t)

	stdout, _, err := execute(t, cfg, "query", "Employee", "firstName", "department.name", "--sql")
	require.NoError(t, err)

	lines := strings.Split(stdout, "\n")
	require.GreaterOrEqual(t, len(lines), 6)
	assert.True(t, strings.HasPrefix(lines[0], "firstName"))
	assert.Contains(t, lines[0], "department.name")
	assert.True(t, strings.HasPrefix(lines[2], "Grace"))
	assert.Contains(t, lines[2], "Sales")
	assert.True(t, strings.HasPrefix(lines[3], "Ada"))
	assert.Contains(t, stdout, "(3 rows)")
	assert.Contains(t, stdout, `LEFT JOIN "departments"`)
}

func TestQueryCommandJSON(t *testing.T) {
	cfg := seededConfig(t)

	stdout, _, err := execute(t, cfg, "query", "Employee", "firstName",
		"--where", "department.name = 'R&D'", "--order-by", "-firstName", "--first", "1", "--json")
	require.NoError(t, err)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, float64(1), res["totalCount"])
	assert.Equal(t, []interface{}{map[string]interface{}{"firstName": "Alan"}}, res["rows"])
}

func TestQueryCommandErrors(t *testing.T) {
	cfg := seededConfig(t)

	_, stderr, err := execute(t, cfg, "query", "Employe", "firstName")
	assert.True(t, errors.Is(err, errReported))
	assert.Contains(t, stderr, "UNKNOWNENTITY")
	assert.Contains(t, stderr, "Did you mean: Employee?")

	_, stderr, err = execute(t, cfg, "query", "Employee", "firstNam")
	assert.True(t, errors.Is(err, errReported))
	assert.Contains(t, stderr, "Did you mean: firstName?")

	_, stderr, err = execute(t, cfg, "query", "Employee", "firstName", "--first", "0")
	assert.True(t, errors.Is(err, errReported))
	assert.Contains(t, stderr, "INPUTVALIDATION")

	_, _, err = execute(t, cfg, "query", "Employee")
	assert.Error(t, err, "query needs at least one field")
}

func TestCreateSchemaFlag(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "database:\n  driver: sqlite3\n  url: \":memory:\"\n")

	_, _, err := execute(t, cfg, "query", "Employee", "firstName")
	assert.Error(t, err, "an empty database has no tables")

	stdout, _, err := execute(t, cfg, "--create-schema", "query", "Employee", "firstName")
	require.NoError(t, err)
	assert.Contains(t, stdout, "(0 rows)")
}

func TestEntitiesCommand(t *testing.T) {
	cfg := seededConfig(t)

	stdout, _, err := execute(t, cfg, "entities")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Organisation")
	assert.Contains(t, stdout, "lastName ASC, firstName ASC")
	assert.Contains(t, stdout, "15 entities, ")
	assert.Contains(t, stdout, "Navigation cycles")
	assert.Contains(t, stdout, "Cycle 1: ")

	stdout, _, err = execute(t, cfg, "entities", "Department")
	require.NoError(t, err)
	assert.Contains(t, stdout, "organisation_id")
	assert.Contains(t, stdout, "one_to_many")

	_, stderr, err := execute(t, cfg, "entities", "Departmnt")
	assert.True(t, errors.Is(err, errReported))
	assert.Contains(t, stderr, "Did you mean: Department?")
}

func TestDDLCommand(t *testing.T) {
	cfg := seededConfig(t)

	stdout, _, err := execute(t, cfg, "ddl")
	require.NoError(t, err)
	assert.Contains(t, stdout, `CREATE TABLE IF NOT EXISTS "employees"`)
	assert.Contains(t, stdout, `CREATE INDEX IF NOT EXISTS`)

	stdout, stderr, err := execute(t, cfg, "ddl", "--dialect", "postgres", "--drop")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "DROP TABLE IF EXISTS"))
	assert.Contains(t, stderr, "DROP statements delete every table")
	assert.Contains(t, stdout, "TIMESTAMP WITH TIME ZONE")

	_, _, err = execute(t, cfg, "ddl", "--dialect", "oracle")
	assert.ErrorContains(t, err, "unknown dialect")
}

func TestEntitiesExport(t *testing.T) {
	cfg := seededConfig(t)

	stdout, _, err := execute(t, cfg, "entities", "--export")
	require.NoError(t, err)

	decls, err := schema.ParseCatalog([]byte(stdout))
	require.NoError(t, err)
	registry, err := schema.Build(decls...)
	require.NoError(t, err)
	assert.Equal(t, len(domain.Declarations()), registry.Count())

	employee, err := registry.Lookup("Employee")
	require.NoError(t, err)
	assert.Equal(t, []schema.SortSpec{{Path: "lastName"}, {Path: "firstName"}}, employee.DefaultSort)
}

func TestInvalidConfig(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "database:\n  driver: mysql\n")

	_, _, err := execute(t, cfg, "entities")
	require.ErrorIs(t, err, errConfig)
	assert.ErrorContains(t, err, "database.driver")
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, fmt.Errorf("wrapped: %w", errReported))
	assert.Empty(t, buf.String())

	reportError(&buf, fmt.Errorf("%w: server.port must be between 1 and 65535", errConfig))
	assert.Contains(t, buf.String(), "CONFIGURATION ERROR: invalid configuration: server.port")

	buf.Reset()
	reportError(&buf, errors.New("boom"))
	assert.Contains(t, buf.String(), "Error: boom")
}

type fakePrompter struct {
	entity string
	fields []string
	inputs []string
}

func (f *fakePrompter) Select(_ string, options []string) (string, error) {
	for _, o := range options {
		if o == f.entity {
			return o, nil
		}
	}
	return "", errors.New("entity not offered")
}

func (f *fakePrompter) MultiSelect(_ string, options []string) ([]string, error) {
	for _, want := range f.fields {
		found := false
		for _, o := range options {
			found = found || o == want
		}
		if !found {
			return nil, errors.New(want + " not offered")
		}
	}
	return f.fields, nil
}

func (f *fakePrompter) Input(string, string) (string, error) {
	answer := f.inputs[0]
	f.inputs = f.inputs[1:]
	return answer, nil
}

func TestExploreCommand(t *testing.T) {
	cfg := seededConfig(t)
	p := &fakePrompter{
		entity: "Employee",
		fields: []string{"lastName", "role.title"},
		inputs: []string{"department.name = 'R&D'", "-lastName", "5"},
	}

	cmd := newExploreCommand(&app{configPath: cfg, noColor: true}, p)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stderr.String(),
		`flatquery query Employee lastName role.title --where "department.name = 'R&D'" --order-by -lastName --first 5`)
	lines := strings.Split(stdout.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.True(t, strings.HasPrefix(lines[2], "Turing"))
	assert.True(t, strings.HasPrefix(lines[3], "Lovelace"))
	assert.Contains(t, stdout.String(), "Engineer")
}

func TestAskRequestRejectsBadLimit(t *testing.T) {
	registry, err := domain.Registry()
	require.NoError(t, err)
	p := &fakePrompter{entity: "Role", fields: []string{"title"}, inputs: []string{"", "", "ten"}}

	_, err = askRequest(p, registry)
	assert.ErrorContains(t, err, "row limit must be a number")
}

func TestCommandLine(t *testing.T) {
	req := engine.Request{Entity: "Team", Fields: []string{"name", "members.*"}}
	assert.Equal(t, "flatquery query Team name members.*", commandLine(req))
}
