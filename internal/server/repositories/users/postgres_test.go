package users

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authmaker/internal/common"
	"github.com/dmitrijs2005/authmaker/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var userCols = []string{
	"id", "username", "client_id", "display_name", "email", "password_hash", "offline_email",
	"website_url", "config_id", "status", "created_at", "last_login", "updated_at", "activated", "is_admin",
	"last_known_information", "logged_in", "avatar_url", "password_reset_hash", "activation_hash", "preferences",
}

func userRow(id, name string, created time.Time, configID driver.Value) []driver.Value {
	return []driver.Value{
		id, name, "client-1", "Alice", name + "@example.com", "hash", "",
		"https://www.example.com", configID, "active", created, nil, created, true, false,
		[]byte(`{"timezone":"Europe/Riga","browser":"firefox"}`), false, "", "", "",
		[]byte(`{"tabNotify":true}`),
	}
}

const (
	insertUserQ   = `(?s)^\s*INSERT\s+INTO\s+users\s*\(id,\s*username,\s*client_id,.*VALUES\s*\(\$1,.*\$18\)\s*RETURNING\s+created_at,\s*updated_at\s*$`
	selectByIDQ   = `(?s)^SELECT\s+id,\s*username,.*preferences\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`
	selectLoginQ  = `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s+AND\s+client_id\s*=\s*\$2$`
	selectIdentsQ = `(?s)^\s*SELECT\s+external_identity_id\s+FROM\s+user_external_identities\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+external_identity_id\s*$`
	updateUserQ   = `(?s)^\s*UPDATE\s+users\s+SET\s+display_name\s*=\s*\$2,.*WHERE\s+id\s*=\s*\$1\s+RETURNING\s+updated_at\s*$`
)

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(insertUserQ).
		WithArgs(sqlmock.AnyArg(), "alice", "client-1", "Alice", "alice@example.com", "hash", "",
			"https://example.com", nil, "pending-activation", false, false, `{}`, false,
			"", "", "act", `{"tabNotify":false,"soundNotify":true,"chromeNotify":false}`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u := models.NewUser("alice", "client-1")
	u.DisplayName = "Alice"
	u.Email = "alice@example.com"
	u.PasswordHash = "hash"
	u.WebsiteURL = "https://example.com"
	u.ActivationHash = "act"

	got, err := repo.Create(context.Background(), u)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, now, got.CreatedAt)
	assert.Equal(t, now, got.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_KeepsGivenID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(insertUserQ).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u := models.NewUser("bob", "client-1")
	u.ID = "7b0c3f52-6a55-4a4e-9d0e-3c1f1f0f9e11"

	got, err := repo.Create(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "7b0c3f52-6a55-4a4e-9d0e-3c1f1f0f9e11", got.ID)
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertUserQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_client_id_uidx"})

	_, err := repo.Create(context.Background(), models.NewUser("alice", "client-1"))
	assert.ErrorIs(t, err, common.ErrDuplicateUser)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertUserQ).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), models.NewUser("alice", "client-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(selectByIDQ).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userRow("u-1", "alice", created, "cfg-9")...))
	mock.ExpectQuery(selectIdentsQ).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"external_identity_id"}).AddRow("ext-a").AddRow("ext-b"))

	got, err := repo.GetByID(context.Background(), "u-1")
	require.NoError(t, err)

	assert.Equal(t, "alice", got.UserName)
	assert.Equal(t, models.StatusActive, got.Status)
	require.NotNil(t, got.ConfigRef)
	assert.Equal(t, "cfg-9", *got.ConfigRef)
	assert.Nil(t, got.LastLogin)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, models.LastKnownInformation{Timezone: "Europe/Riga", Browser: "firefox"}, got.LastKnownInformation)
	assert.Equal(t, models.Preferences{TabNotify: true, SoundNotify: true, ChromeNotify: false}, got.Preferences,
		"keys missing from the stored document keep their defaults")
	assert.Equal(t, []string{"ext-a", "ext-b"}, got.ExternalIdentities)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByIDQ).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetByID_IdentitiesError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByIDQ).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userRow("u-1", "alice", time.Now(), nil)...))
	mock.ExpectQuery(selectIdentsQ).WithArgs("u-1").WillReturnError(errors.New("conn reset"))

	_, err := repo.GetByID(context.Background(), "u-1")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestGetByID_BadPreferencesDocument(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	row := userRow("u-1", "alice", time.Now(), nil)
	row[len(row)-1] = []byte(`{not json`)
	mock.ExpectQuery(selectByIDQ).WithArgs("u-1").WillReturnRows(sqlmock.NewRows(userCols).AddRow(row...))

	_, err := repo.GetByID(context.Background(), "u-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode preferences")
}

func TestGetByLogin(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectLoginQ).
		WithArgs("alice", "client-1").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userRow("u-1", "alice", time.Now(), nil)...))

	got, err := repo.GetByLogin(context.Background(), "alice", "client-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
	assert.Nil(t, got.ConfigRef)

	mock.ExpectQuery(selectLoginQ).WithArgs("ghost", "client-1").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByLogin(context.Background(), "ghost", "client-1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	login := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	updated := login.Add(time.Second)
	cfg := "cfg-1"

	mock.ExpectQuery(updateUserQ).
		WithArgs("u-1", "Alice", "alice@example.com", "hash", "", "https://example.com", "cfg-1", "active",
			login, true, false, `{"os":"linux"}`, true, "", "", "",
			`{"tabNotify":false,"soundNotify":false,"chromeNotify":true}`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))

	u := &models.User{
		ID: "u-1", DisplayName: "Alice", Email: "alice@example.com", PasswordHash: "hash",
		WebsiteURL: "https://example.com", ConfigRef: &cfg, Status: models.StatusActive,
		LastLogin: &login, Activated: true, LoggedIn: true,
		LastKnownInformation: models.LastKnownInformation{OS: "linux"},
		Preferences:          models.Preferences{ChromeNotify: true},
	}
	require.NoError(t, repo.Update(context.Background(), u))
	assert.Equal(t, updated, u.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(updateUserQ).WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := repo.Update(context.Background(), &models.User{ID: "ghost"})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(updateUserQ).WillReturnError(errors.New("db err"))

	err := repo.Update(context.Background(), &models.User{ID: "u-1"})
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestTouch(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+updated_at\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$1$`
	mock.ExpectExec(q).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Touch(context.Background(), "u-1"))
	assert.ErrorIs(t, repo.Touch(context.Background(), "ghost"), common.ErrorNotFound)
}

func TestFindUsersByClientAndSort_FirstRegistered(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q := `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+client_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+ASC,\s*id\s+ASC\s+LIMIT\s+\$2$`
	mock.ExpectQuery(q).
		WithArgs("client-1", 1).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userRow("u-1", "first", t1, nil)...))

	got, err := repo.FindUsersByClientAndSort(context.Background(), "client-1", SortCreatedAsc, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].UserName)
	assert.Equal(t, t1, got[0].CreatedAt)
}

func TestFindUsersByClientAndSort_NoLimit(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := `(?s)^SELECT\s+id,.*ORDER\s+BY\s+created_at\s+DESC,\s*id\s+DESC$`
	mock.ExpectQuery(q).
		WithArgs("client-1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(userRow("u-3", "third", t1.Add(2*time.Hour), nil)...).
			AddRow(userRow("u-2", "second", t1.Add(time.Hour), nil)...).
			AddRow(userRow("u-1", "first", t1, nil)...))

	got, err := repo.FindUsersByClientAndSort(context.Background(), "client-1", SortCreatedDesc, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{got[0].UserName, got[1].UserName, got[2].UserName})
}

func TestFindUsersByClientAndSort_EmptyAndErrors(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	_, err := repo.FindUsersByClientAndSort(context.Background(), "client-1", SortKey("password_hash"), 1)
	assert.ErrorIs(t, err, common.ErrorValidation)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+client_id`).
		WithArgs("nobody", 1).
		WillReturnRows(sqlmock.NewRows(userCols))
	got, err := repo.FindUsersByClientAndSort(context.Background(), "nobody", SortUserNameAsc, 1)
	require.NoError(t, err)
	assert.Empty(t, got)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+client_id`).
		WillReturnError(errors.New("timeout"))
	_, err = repo.FindUsersByClientAndSort(context.Background(), "client-1", SortLastLoginDesc, 5)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestFindFirstRegisteredUserForConfig(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+config_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+ASC,\s*id\s+ASC\s+LIMIT\s+1$`
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q).
		WithArgs("cfg-1").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userRow("u-1", "first", t1, "cfg-1")...))
	got, err := repo.FindFirstRegisteredUserForConfig(context.Background(), "cfg-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u-1", got.ID)

	mock.ExpectQuery(q).WithArgs("cfg-none").WillReturnError(sql.ErrNoRows)
	got, err = repo.FindFirstRegisteredUserForConfig(context.Background(), "cfg-none")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSentEmails(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := time.Date(2026, 4, 4, 4, 4, 4, 0, time.UTC)
	email := models.SentEmail{Timestamp: ts, To: "alice@example.com", Subject: "Welcome", Message: "hi", Reference: "welcome-1"}

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+sent_emails\s*\(user_id,\s*sent_at,\s*recipient,\s*subject,\s*message,\s*reference\)`).
		WithArgs("u-1", ts, "alice@example.com", "Welcome", "hi", "welcome-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.AppendSentEmail(context.Background(), "u-1", email))

	mock.ExpectQuery(`(?s)^\s*SELECT\s+sent_at,\s*recipient,\s*subject,\s*message,\s*reference\s+FROM\s+sent_emails\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+id\s+ASC\s*$`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"sent_at", "recipient", "subject", "message", "reference"}).
			AddRow(ts, "alice@example.com", "Welcome", "hi", "welcome-1"))
	got, err := repo.ListSentEmails(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, []models.SentEmail{email}, got)

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+sent_emails`).WillReturnError(errors.New("disk full"))
	assert.ErrorIs(t, repo.AppendSentEmail(context.Background(), "u-1", email), common.ErrStoreUnavailable)
}

func TestAddExternalIdentity(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+user_external_identities\s*\(user_id,\s*external_identity_id\)\s*VALUES\s*\(\$1,\s*\$2\)\s*ON\s+CONFLICT\s+DO\s+NOTHING\s*$`
	mock.ExpectExec(q).WithArgs("u-1", "ext-a").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.AddExternalIdentity(context.Background(), "u-1", "ext-a"))

	mock.ExpectExec(q).WithArgs("u-1", "ext-a").WillReturnError(errors.New("db err"))
	assert.ErrorIs(t, repo.AddExternalIdentity(context.Background(), "u-1", "ext-a"), common.ErrStoreUnavailable)
}
