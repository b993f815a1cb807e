package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authmaker/internal/common"
	"github.com/dmitrijs2005/authmaker/internal/dbx"
	"github.com/dmitrijs2005/authmaker/internal/logging"
	"github.com/dmitrijs2005/authmaker/internal/server/config"
	"github.com/dmitrijs2005/authmaker/internal/server/models"
	"github.com/dmitrijs2005/authmaker/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/authmaker/internal/server/repositories/users"
	"golang.org/x/crypto/bcrypt"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// fakeUsersRepo is an in-memory users.Repository. Stored users are copied
// on the way in and out so services cannot mutate state without Update.
type fakeUsersRepo struct {
	mu         sync.Mutex
	byID       map[string]*models.User
	emails     map[string][]models.SentEmail
	touched    []string
	clock      time.Time
	createErr  error
	getErr     error
	updateErr  error
	appendErr  error
	updates    int
	findCalls  []findCall
	findResult []*models.User
}

type findCall struct {
	clientID string
	sort     users.SortKey
	limit    int
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{
		byID:   map[string]*models.User{},
		emails: map[string][]models.SentEmail{},
		clock:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func clone(u *models.User) *models.User {
	c := *u
	if u.ConfigRef != nil {
		ref := *u.ConfigRef
		c.ConfigRef = &ref
	}
	c.ExternalIdentities = append([]string(nil), u.ExternalIdentities...)
	return &c
}

func (f *fakeUsersRepo) put(u *models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = clone(u)
	return u
}

func (f *fakeUsersRepo) stored(id string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clone(f.byID[id])
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.byID {
		if existing.UserName == u.UserName && existing.ClientID == u.ClientID {
			return nil, common.ErrDuplicateUser
		}
	}
	f.clock = f.clock.Add(time.Second)
	u.CreatedAt, u.UpdatedAt = f.clock, f.clock
	f.byID[u.ID] = clone(u)
	return u, nil
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (f *fakeUsersRepo) GetByLogin(_ context.Context, userName, clientID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.UserName == userName && u.ClientID == clientID {
			return clone(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) Update(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.byID[u.ID]; !ok {
		return common.ErrorNotFound
	}
	f.updates++
	f.clock = f.clock.Add(time.Second)
	u.UpdatedAt = f.clock
	f.byID[u.ID] = clone(u)
	return nil
}

func (f *fakeUsersRepo) Touch(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeUsersRepo) FindUsersByClientAndSort(_ context.Context, clientID string, sortKey users.SortKey, limit int) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls = append(f.findCalls, findCall{clientID, sortKey, limit})
	if f.findResult != nil {
		return f.findResult, nil
	}

	var out []*models.User
	for _, u := range f.byID {
		if u.ClientID == clientID {
			out = append(out, clone(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeUsersRepo) FindFirstRegisteredUserForConfig(_ context.Context, configID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first *models.User
	for _, u := range f.byID {
		if u.ConfigRef == nil || *u.ConfigRef != configID {
			continue
		}
		if first == nil || u.CreatedAt.Before(first.CreatedAt) {
			first = u
		}
	}
	if first == nil {
		return nil, nil
	}
	return clone(first), nil
}

func (f *fakeUsersRepo) AppendSentEmail(_ context.Context, userID string, e models.SentEmail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.emails[userID] = append(f.emails[userID], e)
	return nil
}

func (f *fakeUsersRepo) ListSentEmails(_ context.Context, userID string) ([]models.SentEmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.SentEmail(nil), f.emails[userID]...), nil
}

func (f *fakeUsersRepo) AddExternalIdentity(_ context.Context, userID, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return common.ErrorNotFound
	}
	for _, id := range u.ExternalIdentities {
		if id == externalID {
			return nil
		}
	}
	u.ExternalIdentities = append(u.ExternalIdentities, externalID)
	return nil
}

type fakeAccountsRepo struct {
	out   map[string][]*models.Account
	err   error
	calls int
}

func (f *fakeAccountsRepo) FindAccountsForUser(_ context.Context, userID string) ([]*models.Account, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.out[userID], nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	a *fakeAccountsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return m.u }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository       { return m.a }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type testEnv struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	users    *fakeUsersRepo
	accounts *fakeAccountsRepo
	resolver *ScopeResolver
	svc      *UserService
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock := newSQLMockDB(t)
	rm := &fakeRepoManager{u: newFakeUsersRepo(), a: &fakeAccountsRepo{out: map[string][]*models.Account{}}}
	cfg := &config.Config{BcryptCost: bcrypt.MinCost}

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	resolver := NewScopeResolver(db, rm, logging.Nop{})
	resolver.now = func() time.Time { return now }
	svc := NewUserService(db, rm, resolver, cfg, logging.Nop{})
	svc.now = func() time.Time { return now }

	return &testEnv{db: db, mock: mock, users: rm.u, accounts: rm.a, resolver: resolver, svc: svc, now: now}
}

// expectTx queues a transaction that commits (ok) or rolls back.
func (e *testEnv) expectTx(ok bool) {
	e.mock.ExpectBegin()
	if ok {
		e.mock.ExpectCommit()
	} else {
		e.mock.ExpectRollback()
	}
}

func (e *testEnv) seedUser(id string, status models.Status) *models.User {
	u := models.NewUser("user-"+id, "client-1")
	u.ID = id
	u.Status = status
	return e.users.put(u)
}
