// Package accounts provides the PostgreSQL-backed account/plan/scope store.
package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/authmaker/internal/common"
	"github.com/dmitrijs2005/authmaker/internal/dbx"
	"github.com/dmitrijs2005/authmaker/internal/server/models"
	"golang.org/x/sync/errgroup"
)

// DefaultFanOut bounds concurrent scope loads when no limit is configured.
const DefaultFanOut = 4

type PostgresRepository struct {
	db     dbx.DBTX
	fanOut int
}

// NewPostgresRepository binds the repository to db. Scope queries for
// distinct plans run concurrently, at most fanOut at a time. Inside a
// transaction they run one by one, since a *sql.Tx owns a single connection.
func NewPostgresRepository(db dbx.DBTX, fanOut int) *PostgresRepository {
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	if _, ok := db.(*sql.Tx); ok {
		fanOut = 1
	}
	return &PostgresRepository{db: db, fanOut: fanOut}
}

func (r *PostgresRepository) FindAccountsForUser(ctx context.Context, userID string) ([]*models.Account, error) {
	query := `
		SELECT a.id, a.name, a.plan_id, p.id, p.name, p.expiry_date
		FROM accounts a
		JOIN account_users au ON au.account_id = a.id
		LEFT JOIN plans p ON p.id = a.plan_id
		WHERE au.user_id = $1
		ORDER BY a.id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, dbx.StoreError(err)
	}
	defer rows.Close()

	var (
		result []*models.Account
		plans  = map[string]*models.Plan{}
		order  []string
	)

	for rows.Next() {
		var (
			acc                     models.Account
			planRef, planID, planNm sql.NullString
			expiry                  sql.NullTime
		)
		if err := rows.Scan(&acc.ID, &acc.Name, &planRef, &planID, &planNm, &expiry); err != nil {
			return nil, dbx.StoreError(err)
		}
		if !planID.Valid {
			return nil, fmt.Errorf("%w: account %s references plan %q", common.ErrDanglingReference, acc.ID, planRef.String)
		}

		// accounts sharing a plan share one *Plan so scopes load once
		plan, ok := plans[planID.String]
		if !ok {
			plan = &models.Plan{ID: planID.String, Name: planNm.String, ExpiryDate: expiry.Time}
			plans[planID.String] = plan
			order = append(order, planID.String)
		}
		acc.Plan = plan
		result = append(result, &acc)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.StoreError(err)
	}
	// release the connection before fanning out
	rows.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanOut)
	for _, id := range order {
		plan := plans[id]
		g.Go(func() error {
			scopes, err := r.scopesForPlan(gctx, plan.ID)
			if err != nil {
				return err
			}
			plan.Scopes = scopes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresRepository) scopesForPlan(ctx context.Context, planID string) ([]models.Scope, error) {
	query := `SELECT id, scope FROM scopes WHERE plan_id = $1 ORDER BY position, id`

	rows, err := r.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, dbx.StoreError(err)
	}
	defer rows.Close()

	var scopes []models.Scope
	for rows.Next() {
		var s models.Scope
		if err := rows.Scan(&s.ID, &s.Scope); err != nil {
			return nil, dbx.StoreError(err)
		}
		scopes = append(scopes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.StoreError(err)
	}
	return scopes, nil
}

var _ Repository = (*PostgresRepository)(nil)
