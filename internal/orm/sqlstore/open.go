package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"  // pgx driver
	_ "github.com/lib/pq"               // postgres driver
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	_ "github.com/mattn/go-sqlite3"     // sqlite3 driver
)

// Driver names accepted by Open
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverDuckDB   = "duckdb"
)

// Pool defaults applied by Open
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
)

// Open opens a database with one of the supported drivers, applies pool
// defaults and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, Dialect, error) {
	dialect, err := DialectForDriver(driver)
	if err != nil {
		return nil, nil, err
	}
	if dsn == "" {
		return nil, nil, fmt.Errorf("database url is required for driver %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, lifetime := DefaultMaxOpenConns, DefaultConnMaxLifetime
	if driver == DriverSQLite && isMemoryDSN(dsn) {
		// every connection to :memory: is a separate database that dies with it
		maxOpen, lifetime = 1, 0
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(min(DefaultMaxIdleConns, maxOpen))
	db.SetConnMaxLifetime(lifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, dialect, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:")
}
