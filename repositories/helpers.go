package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// SQLExecutor is satisfied by both *sql.DB and *sql.Tx.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError
	}
	return nil
}

// constraintError maps a Postgres constraint violation to the sentinel registered
// for that constraint name. Unknown violations and other errors come back as is.
func constraintError(err error, byConstraint map[string]error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation, pqForeignKeyViolation:
		if mapped, ok := byConstraint[pqErr.Constraint]; ok {
			return mapped
		}
		if pqErr.Code == pqForeignKeyViolation {
			return ErrInvalidReference
		}
	}
	return err
}
