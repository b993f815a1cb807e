// Package users provides the PostgreSQL-backed user repository.
package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authmaker/internal/common"
	"github.com/dmitrijs2005/authmaker/internal/dbx"
	"github.com/dmitrijs2005/authmaker/internal/server/models"
	"github.com/google/uuid"
)

const userColumns = `id, username, client_id, display_name, email, password_hash, offline_email,
		website_url, config_id, status, created_at, last_login, updated_at, activated, is_admin,
		last_known_information, logged_in, avatar_url, password_reset_hash, activation_hash, preferences`

var orderBy = map[SortKey]string{
	SortCreatedAsc:    "created_at ASC, id ASC",
	SortCreatedDesc:   "created_at DESC, id DESC",
	SortUserNameAsc:   "username ASC, id ASC",
	SortLastLoginDesc: "last_login DESC NULLS LAST, id ASC",
}

// PostgresRepository implements Repository over dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	info, prefs, err := encodeNested(user)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO users (id, username, client_id, display_name, email, password_hash, offline_email,
			website_url, config_id, status, activated, is_admin, last_known_information, logged_in,
			avatar_url, password_reset_hash, activation_hash, preferences)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		user.ID, user.UserName, user.ClientID, user.DisplayName, user.Email, user.PasswordHash, user.OfflineEmail,
		user.WebsiteURL, user.ConfigRef, string(user.Status), user.Activated, user.IsAdmin, info, user.LoggedIn,
		user.AvatarURL, user.PasswordResetHash, user.ActivationHash, prefs,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrDuplicateUser
		}
		return nil, dbx.StoreError(err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	user.ExternalIdentities, err = r.listExternalIdentities(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (r *PostgresRepository) GetByLogin(ctx context.Context, userName, clientID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 AND client_id = $2`
	return scanUser(r.db.QueryRowContext(ctx, query, userName, clientID))
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) error {
	info, prefs, err := encodeNested(user)
	if err != nil {
		return err
	}

	query := `
		UPDATE users SET display_name = $2, email = $3, password_hash = $4, offline_email = $5,
			website_url = $6, config_id = $7, status = $8, last_login = $9, activated = $10,
			is_admin = $11, last_known_information = $12, logged_in = $13, avatar_url = $14,
			password_reset_hash = $15, activation_hash = $16, preferences = $17, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		user.ID, user.DisplayName, user.Email, user.PasswordHash, user.OfflineEmail,
		user.WebsiteURL, user.ConfigRef, string(user.Status), user.LastLogin, user.Activated,
		user.IsAdmin, info, user.LoggedIn, user.AvatarURL,
		user.PasswordResetHash, user.ActivationHash, prefs,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return dbx.StoreError(err)
	}

	return nil
}

func (r *PostgresRepository) Touch(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET updated_at = now() WHERE id = $1`, userID)
	if err != nil {
		return dbx.StoreError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) FindUsersByClientAndSort(ctx context.Context, clientID string, sort SortKey, limit int) ([]*models.User, error) {
	order, ok := orderBy[sort]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sort key %q", common.ErrorValidation, sort)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE client_id = $1 ORDER BY ` + order
	args := []any{clientID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	return r.queryUsers(ctx, query, args...)
}

func (r *PostgresRepository) FindFirstRegisteredUserForConfig(ctx context.Context, configID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE config_id = $1 ORDER BY created_at ASC, id ASC LIMIT 1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, configID))
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return user, err
}

func (r *PostgresRepository) AppendSentEmail(ctx context.Context, userID string, email models.SentEmail) error {
	query := `
		INSERT INTO sent_emails (user_id, sent_at, recipient, subject, message, reference)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		userID, email.Timestamp, email.To, email.Subject, email.Message, email.Reference); err != nil {
		return dbx.StoreError(err)
	}
	return nil
}

func (r *PostgresRepository) ListSentEmails(ctx context.Context, userID string) ([]models.SentEmail, error) {
	query := `
		SELECT sent_at, recipient, subject, message, reference
		FROM sent_emails
		WHERE user_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, dbx.StoreError(err)
	}
	defer rows.Close()

	emails := make([]models.SentEmail, 0)
	for rows.Next() {
		var e models.SentEmail
		if err := rows.Scan(&e.Timestamp, &e.To, &e.Subject, &e.Message, &e.Reference); err != nil {
			return nil, dbx.StoreError(err)
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.StoreError(err)
	}
	return emails, nil
}

func (r *PostgresRepository) AddExternalIdentity(ctx context.Context, userID, externalID string) error {
	query := `
		INSERT INTO user_external_identities (user_id, external_identity_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, externalID); err != nil {
		return dbx.StoreError(err)
	}
	return nil
}

func (r *PostgresRepository) listExternalIdentities(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT external_identity_id
		FROM user_external_identities
		WHERE user_id = $1
		ORDER BY external_identity_id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, dbx.StoreError(err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dbx.StoreError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.StoreError(err)
	}
	return ids, nil
}

func (r *PostgresRepository) queryUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.StoreError(err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.StoreError(err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		configID  sql.NullString
		lastLogin sql.NullTime
		status    string
		info      []byte
		prefs     []byte
	)

	err := row.Scan(
		&u.ID, &u.UserName, &u.ClientID, &u.DisplayName, &u.Email, &u.PasswordHash, &u.OfflineEmail,
		&u.WebsiteURL, &configID, &status, &u.CreatedAt, &lastLogin, &u.UpdatedAt, &u.Activated, &u.IsAdmin,
		&info, &u.LoggedIn, &u.AvatarURL, &u.PasswordResetHash, &u.ActivationHash, &prefs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.StoreError(err)
	}

	u.Status = models.Status(status)
	if configID.Valid {
		u.ConfigRef = &configID.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}

	if len(info) > 0 {
		if err := json.Unmarshal(info, &u.LastKnownInformation); err != nil {
			return nil, fmt.Errorf("decode last_known_information: %w", err)
		}
	}

	// missing keys keep their defaults
	u.Preferences = models.DefaultPreferences()
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &u.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}

	return &u, nil
}

func encodeNested(user *models.User) (string, string, error) {
	info, err := json.Marshal(user.LastKnownInformation)
	if err != nil {
		return "", "", fmt.Errorf("encode last_known_information: %w", err)
	}
	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return "", "", fmt.Errorf("encode preferences: %w", err)
	}
	return string(info), string(prefs), nil
}

// compile-time check
var _ Repository = (*PostgresRepository)(nil)
