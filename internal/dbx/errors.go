package dbx

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authmaker/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// StoreError wraps a driver failure so callers can match it with
// common.ErrStoreUnavailable while keeping the cause in the chain.
func StoreError(err error) error {
	return fmt.Errorf("db error: %w: %w", common.ErrStoreUnavailable, err)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
