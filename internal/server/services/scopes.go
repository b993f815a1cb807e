// Package services contains server-side business logic: scope resolution
// across a user's accounts, the user lifecycle and avatar storage.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/authmaker/internal/common"
	"github.com/dmitrijs2005/authmaker/internal/logging"
	"github.com/dmitrijs2005/authmaker/internal/server/models"
	"github.com/dmitrijs2005/authmaker/internal/server/repositories/repomanager"
)

// ScopeResolver computes a user's effective permissions from the plans of
// the accounts the user belongs to. Results are never cached: expiry is
// evaluated against the clock at call time.
type ScopeResolver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

func NewScopeResolver(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *ScopeResolver {
	return &ScopeResolver{
		db:          db,
		repomanager: m,
		logger:      l.With("module", "scope_resolver"),
		now:         time.Now,
	}
}

// GetAccounts returns the user's accounts with plans and scopes populated.
func (r *ScopeResolver) GetAccounts(ctx context.Context, user *models.User) ([]*models.Account, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("%w: user without id", common.ErrorValidation)
	}

	accounts, err := r.repomanager.Accounts(r.db).FindAccountsForUser(ctx, user.ID)
	if err != nil {
		r.logger.Error(ctx, "scope resolution failed", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("error loading accounts: %w", err)
	}
	return accounts, nil
}

// GetActiveScopes returns the sorted, duplicate-free identifiers of every
// scope granted by a plan that expires strictly after now. A user with no
// accounts or only expired plans gets an empty, non-nil slice.
func (r *ScopeResolver) GetActiveScopes(ctx context.Context, user *models.User) ([]string, error) {
	accounts, err := r.GetAccounts(ctx, user)
	if err != nil {
		return nil, err
	}

	now := r.now()
	seen := make(map[string]struct{})
	for _, acc := range accounts {
		if acc.Plan == nil {
			return nil, fmt.Errorf("%w: account %s has no plan", common.ErrDanglingReference, acc.ID)
		}
		if !acc.Plan.ActiveAt(now) {
			continue
		}
		for _, s := range acc.Plan.Scopes {
			seen[s.Scope] = struct{}{}
		}
	}

	scopes := make([]string, 0, len(seen))
	for s := range seen {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)

	r.logger.Debug(ctx, "scopes resolved", "user_id", user.ID, "accounts", len(accounts), "scopes", len(scopes))
	return scopes, nil
}
