package accounts

import (
	"context"

	"github.com/dmitrijs2005/authmaker/internal/server/models"
)

// Repository loads account aggregates (account, plan and plan scopes).
type Repository interface {
	// FindAccountsForUser returns every account the user belongs to with
	// Plan and Plan.Scopes populated. An account whose plan row is missing
	// yields common.ErrDanglingReference; no partial result is returned.
	FindAccountsForUser(ctx context.Context, userID string) ([]*models.Account, error)
}
