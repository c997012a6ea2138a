// Package sqlstore executes query plans against relational databases through
// database/sql. It renders a plan into one SELECT with joins, runs it and
// reshapes each result row into a path-shaped record.
package sqlstore

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Dialect captures the SQL differences between the supported databases
type Dialect interface {
	// Name is the dialect name used in configuration
	Name() string
	// Quote quotes an identifier
	Quote(ident string) string
	// Placeholder returns the bind marker for the n-th parameter, starting at 1
	Placeholder(n int) string
	// Now returns the expression for the current timestamp
	Now() string
	// ILike renders a case-insensitive LIKE of left against right
	ILike(left, right string) string
}

// Dialect names
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectDuckDB   = "duckdb"
)

// SQLite is the dialect for mattn/go-sqlite3
var SQLite Dialect = sqliteDialect{}

// Postgres is the dialect for lib/pq and pgx
var Postgres Dialect = postgresDialect{}

// DuckDB is the dialect for marcboeker/go-duckdb
var DuckDB Dialect = duckdbDialect{}

// DialectByName returns the dialect with the given name
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case DialectSQLite, "sqlite3":
		return SQLite, nil
	case DialectPostgres, "postgresql", "pgx":
		return Postgres, nil
	case DialectDuckDB:
		return DuckDB, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

// DialectForDriver returns the dialect matching a database/sql driver name
func DialectForDriver(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite:
		return SQLite, nil
	case DriverPostgres, DriverPgx:
		return Postgres, nil
	case DriverDuckDB:
		return DuckDB, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// quoteDouble wraps ident in double quotes, doubling embedded quotes
func quoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string              { return DialectSQLite }
func (sqliteDialect) Quote(ident string) string { return quoteDouble(ident) }
func (sqliteDialect) Placeholder(int) string    { return "?" }
func (sqliteDialect) Now() string               { return "CURRENT_TIMESTAMP" }

func (sqliteDialect) ILike(left, right string) string {
	return "LOWER(" + left + ") LIKE LOWER(" + right + ")"
}

type postgresDialect struct{}

func (postgresDialect) Name() string              { return DialectPostgres }
func (postgresDialect) Quote(ident string) string { return pq.QuoteIdentifier(ident) }
func (postgresDialect) Placeholder(n int) string  { return fmt.Sprintf("$%d", n) }
func (postgresDialect) Now() string               { return "NOW()" }

func (postgresDialect) ILike(left, right string) string {
	return left + " ILIKE " + right
}

type duckdbDialect struct{}

func (duckdbDialect) Name() string              { return DialectDuckDB }
func (duckdbDialect) Quote(ident string) string { return quoteDouble(ident) }
func (duckdbDialect) Placeholder(int) string    { return "?" }
func (duckdbDialect) Now() string               { return "current_timestamp" }

func (duckdbDialect) ILike(left, right string) string {
	return left + " ILIKE " + right
}
