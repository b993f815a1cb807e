// Package users declares the server-side user store contract.
package users

import (
	"context"

	"github.com/dmitrijs2005/authmaker/internal/server/models"
)

// SortKey selects the ordering of FindUsersByClientAndSort. A leading "-"
// means descending.
type SortKey string

const (
	SortCreatedAsc    SortKey = "created_at"
	SortCreatedDesc   SortKey = "-created_at"
	SortUserNameAsc   SortKey = "username"
	SortLastLoginDesc SortKey = "-last_login"
)

type Repository interface {
	// Create inserts user and fills ID (when empty), CreatedAt and UpdatedAt.
	// A taken (username, client_id) pair yields common.ErrDuplicateUser.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByID returns the user with its external identities, or
	// common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByLogin(ctx context.Context, userName, clientID string) (*models.User, error)

	// Update overwrites every mutable column. Last writer wins.
	Update(ctx context.Context, user *models.User) error
	Touch(ctx context.Context, userID string) error

	// FindUsersByClientAndSort lists users of a client; limit <= 0 means no limit.
	FindUsersByClientAndSort(ctx context.Context, clientID string, sort SortKey, limit int) ([]*models.User, error)
	// FindFirstRegisteredUserForConfig returns the earliest created user bound
	// to the verified-site config, or nil when there is none.
	FindFirstRegisteredUserForConfig(ctx context.Context, configID string) (*models.User, error)

	AppendSentEmail(ctx context.Context, userID string, email models.SentEmail) error
	ListSentEmails(ctx context.Context, userID string) ([]models.SentEmail, error)

	AddExternalIdentity(ctx context.Context, userID, externalID string) error
}
