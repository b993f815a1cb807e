package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authmaker/internal/common"
	"github.com/dmitrijs2005/authmaker/internal/dbx"
	"github.com/dmitrijs2005/authmaker/internal/identity"
	"github.com/dmitrijs2005/authmaker/internal/logging"
	"github.com/dmitrijs2005/authmaker/internal/server/config"
	"github.com/dmitrijs2005/authmaker/internal/server/models"
	"github.com/dmitrijs2005/authmaker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authmaker/internal/server/repositories/users"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const hashBytes = 32

// RegisterParams carries the caller-supplied fields of a new user.
type RegisterParams struct {
	UserName     string
	ClientID     string
	Password     string
	DisplayName  string
	Email        string
	OfflineEmail string
	WebsiteURL   string
	IsAdmin      bool
}

// ProfileUpdate holds the editable profile fields. Nil pointers are left
// unchanged.
type ProfileUpdate struct {
	DisplayName  *string
	Email        *string
	OfflineEmail *string
}

// UserService owns the user lifecycle: registration, activation, status
// changes, website/config bookkeeping and per-user audit data.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	scopes      *ScopeResolver
	logger      logging.Logger
	bcryptCost  int
	now         func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, r *ScopeResolver, cfg *config.Config, l logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		scopes:      r,
		logger:      l.With("module", "user_service"),
		bcryptCost:  cfg.BcryptCost,
		now:         time.Now,
	}
}

// Register creates a pending-activation user. The password is stored as a
// bcrypt hash; DisplayName defaults to the user name.
func (s *UserService) Register(ctx context.Context, p RegisterParams) (*models.User, error) {
	p.UserName = strings.TrimSpace(p.UserName)
	p.ClientID = strings.TrimSpace(p.ClientID)
	if p.UserName == "" || p.ClientID == "" {
		return nil, fmt.Errorf("%w: username and client id are required", common.ErrorValidation)
	}
	if p.WebsiteURL != "" {
		if _, err := identity.Canonicalize(p.WebsiteURL); err != nil {
			return nil, err
		}
	}

	user := models.NewUser(p.UserName, p.ClientID)
	user.ID = uuid.NewString()
	user.DisplayName = p.DisplayName
	if user.DisplayName == "" {
		user.DisplayName = p.UserName
	}
	user.Email = p.Email
	user.OfflineEmail = p.OfflineEmail
	user.WebsiteURL = p.WebsiteURL
	user.IsAdmin = p.IsAdmin

	if p.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), s.bcryptCost)
		if err != nil {
			if errors.Is(err, bcrypt.ErrPasswordTooLong) {
				return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
			}
			return nil, fmt.Errorf("error hashing password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	activation, err := common.MakeRandHexString(hashBytes)
	if err != nil {
		return nil, fmt.Errorf("error generating activation hash: %w", err)
	}
	user.ActivationHash = activation

	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", u.ID, "client_id", u.ClientID)
	return u, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return u, nil
}

func (s *UserService) GetByLogin(ctx context.Context, userName, clientID string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByLogin(ctx, userName, clientID)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return u, nil
}

// SetWebsiteURL stores raw as the user's website. The second result reports
// whether a verified config reference was dropped because the canonical
// host changed.
func (s *UserService) SetWebsiteURL(ctx context.Context, id, raw string) (*models.User, bool, error) {
	var invalidated bool
	u, err := s.mutate(ctx, id, func(u *models.User) error {
		var err error
		invalidated, err = u.SetWebsiteURL(raw)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if invalidated {
		host, _ := u.CleanURL()
		s.logger.Info(ctx, "config invalidated", "user_id", u.ID, "host", host)
	}
	return u, invalidated, nil
}

// AttachConfig records the outcome of an external site verification for
// the user's current canonical host.
func (s *UserService) AttachConfig(ctx context.Context, id, configID string) (*models.User, error) {
	if strings.TrimSpace(configID) == "" {
		return nil, fmt.Errorf("%w: config id is required", common.ErrorValidation)
	}
	return s.mutate(ctx, id, func(u *models.User) error {
		return u.AttachConfig(configID)
	})
}

// Activate completes pending-activation -> active when hash matches the
// one issued at registration.
func (s *UserService) Activate(ctx context.Context, id, hash string) (*models.User, error) {
	return s.mutate(ctx, id, func(u *models.User) error {
		if u.Status != models.StatusPendingActivation || u.ActivationHash == "" {
			return fmt.Errorf("%w: user is %s", common.ErrInvalidStatusTransition, u.Status)
		}
		if subtle.ConstantTimeCompare([]byte(u.ActivationHash), []byte(hash)) != 1 {
			return common.ErrInvalidActivation
		}
		u.Status = models.StatusActive
		u.Activated = true
		u.ActivationHash = ""
		return nil
	})
}

// ChangeStatus moves the user along the lifecycle. Activation has its own
// entry point and is rejected here.
func (s *UserService) ChangeStatus(ctx context.Context, id string, to models.Status) (*models.User, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrorValidation, to)
	}
	u, err := s.mutate(ctx, id, func(u *models.User) error {
		if u.Status == models.StatusPendingActivation && to == models.StatusActive {
			return fmt.Errorf("%w: activation requires the activation hash", common.ErrInvalidStatusTransition)
		}
		if !models.CanTransition(u.Status, to) {
			return fmt.Errorf("%w: %s -> %s", common.ErrInvalidStatusTransition, u.Status, to)
		}
		u.Status = to
		if to == models.StatusDeactivated {
			u.LoggedIn = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "status changed", "user_id", u.ID, "status", string(u.Status))
	return u, nil
}

// RecordLogin stores a login snapshot. info replaces the previous snapshot
// as a whole.
func (s *UserService) RecordLogin(ctx context.Context, id string, info models.LastKnownInformation) (*models.User, error) {
	return s.mutate(ctx, id, func(u *models.User) error {
		if u.Status != models.StatusActive {
			return fmt.Errorf("%w: user is %s", common.ErrorUnauthorized, u.Status)
		}
		now := s.now().UTC()
		u.LastLogin = &now
		u.LoggedIn = true
		u.LastKnownInformation = info
		return nil
	})
}

func (s *UserService) RecordLogout(ctx context.Context, id string) (*models.User, error) {
	return s.mutate(ctx, id, func(u *models.User) error {
		u.LoggedIn = false
		return nil
	})
}

func (s *UserService) UpdatePreferences(ctx context.Context, id string, prefs models.Preferences) (*models.User, error) {
	return s.mutate(ctx, id, func(u *models.User) error {
		u.Preferences = prefs
		return nil
	})
}

func (s *UserService) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (*models.User, error) {
	return s.mutate(ctx, id, func(u *models.User) error {
		if p.DisplayName != nil {
			u.DisplayName = *p.DisplayName
		}
		if p.Email != nil {
			u.Email = *p.Email
		}
		if p.OfflineEmail != nil {
			u.OfflineEmail = *p.OfflineEmail
		}
		return nil
	})
}

// RequestPasswordReset issues a fresh reset hash and returns it. Delivering
// it to the user is up to the caller.
func (s *UserService) RequestPasswordReset(ctx context.Context, id string) (string, error) {
	hash, err := common.MakeRandHexString(hashBytes)
	if err != nil {
		return "", fmt.Errorf("error generating reset hash: %w", err)
	}
	if _, err := s.mutate(ctx, id, func(u *models.User) error {
		u.PasswordResetHash = hash
		return nil
	}); err != nil {
		return "", err
	}
	return hash, nil
}

// RecordSentEmail appends an entry to the user's sent-email log.
func (s *UserService) RecordSentEmail(ctx context.Context, id string, email models.SentEmail) error {
	if email.Timestamp.IsZero() {
		email.Timestamp = s.now().UTC()
	}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		if err := repo.AppendSentEmail(ctx, id, email); err != nil {
			return err
		}
		return repo.Touch(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("error recording sent email: %w", err)
	}
	return nil
}

func (s *UserService) SentEmails(ctx context.Context, id string) ([]models.SentEmail, error) {
	emails, err := s.repomanager.Users(s.db).ListSentEmails(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error listing sent emails: %w", err)
	}
	return emails, nil
}

// LinkExternalIdentity adds a weak reference to an identity held by an
// external provider. Linking the same identity twice is a no-op.
func (s *UserService) LinkExternalIdentity(ctx context.Context, id, externalID string) error {
	if externalID == "" {
		return fmt.Errorf("%w: external identity id is required", common.ErrorValidation)
	}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		if err := repo.AddExternalIdentity(ctx, id, externalID); err != nil {
			return err
		}
		return repo.Touch(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("error linking external identity: %w", err)
	}
	return nil
}

func (s *UserService) GetAccounts(ctx context.Context, id string) ([]*models.Account, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.scopes.GetAccounts(ctx, u)
}

func (s *UserService) GetActiveScopes(ctx context.Context, id string) ([]string, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.scopes.GetActiveScopes(ctx, u)
}

// FirstRegisteredUser returns the earliest-created user of clientID.
func (s *UserService) FirstRegisteredUser(ctx context.Context, clientID string) (*models.User, error) {
	found, err := s.repomanager.Users(s.db).FindUsersByClientAndSort(ctx, clientID, users.SortCreatedAsc, 1)
	if err != nil {
		return nil, fmt.Errorf("error finding users: %w", err)
	}
	if len(found) == 0 {
		return nil, common.ErrorNotFound
	}
	return found[0], nil
}

// FirstRegisteredUserForConfig returns the earliest-created user whose
// verified site is configID.
func (s *UserService) FirstRegisteredUserForConfig(ctx context.Context, configID string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).FindFirstRegisteredUserForConfig(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("error finding users: %w", err)
	}
	if u == nil {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

// mutate loads the user, applies fn and writes the result back in one
// transaction. Nothing is written when fn fails.
func (s *UserService) mutate(ctx context.Context, id string, fn func(u *models.User) error) (*models.User, error) {
	var out *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		u, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		if err := repo.Update(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
