package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrExecution wraps every failure raised while running a statement
var ErrExecution = errors.New("statement execution failed")

// ConvertDBError wraps a driver error in ErrExecution, keeping the driver
// code and message readable. Context errors stay reachable with errors.Is.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrExecution, err)
	}

	// PostgreSQL through pgx
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: postgres %s: %s", ErrExecution, pgErr.Code, pgErr.Message)
	}

	// PostgreSQL through lib/pq
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w: postgres %s: %s", ErrExecution, pqErr.Code, pqErr.Message)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return fmt.Errorf("%w: sqlite %s: %w", ErrExecution, liteErr.Code.Error(), err)
	}

	return fmt.Errorf("%w: %w", ErrExecution, err)
}
