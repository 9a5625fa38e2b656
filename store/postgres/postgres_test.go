package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore/store"
)

var (
	pgEpoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cols    = []string{"id", "email", "password_hash", "role", "failed_login_attempts", "locked_until", "is_active", "last_login", "created_at", "updated_at"}
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestCreateUserNormalizesEmail(t *testing.T) {
	db, mock := newMock(t)
	s := NewUserStore(db)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WithArgs("u1", "alice@example.com", "hash", sqlmock.AnyArg(), sqlmock.AnyArg(), nil, true, nil, pgEpoch, pgEpoch).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateUser(context.Background(), &store.UserRecord{
		ID: "u1", Email: " Alice@Example.com ", PasswordHash: "hash", Role: store.RoleAdmin,
		IsActive: true, CreatedAt: pgEpoch, UpdatedAt: pgEpoch,
	})
	require.NoError(t, err)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	s := NewUserStore(db)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.CreateUser(context.Background(), &store.UserRecord{ID: "u1", Email: "a@b.c"})
	require.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func TestGetUserByEmail(t *testing.T) {
	db, mock := newMock(t)
	s := NewUserStore(db)
	locked := pgEpoch.Add(time.Hour)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("u1", "alice@example.com", "hash", int64(2), int64(3), locked, true, nil, pgEpoch, pgEpoch))

	u, err := s.GetUserByEmail(context.Background(), "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, store.RoleAdjuster, u.Role)
	assert.Equal(t, uint32(3), u.FailedLoginAttempts)
	require.NotNil(t, u.LockedUntil)
	assert.True(t, u.LockedUntil.Equal(locked))
	assert.Nil(t, u.LastLogin)
}

func TestGetUserByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	s := NewUserStore(db)

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetUserByID(context.Background(), "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetUserByIDDBError(t *testing.T) {
	db, mock := newMock(t)
	s := NewUserStore(db)

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users`).
		WillReturnError(errors.New("db down"))

	_, err := s.GetUserByID(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: db down")
}

func TestUpdateUserMissing(t *testing.T) {
	db, mock := newMock(t)
	s := NewUserStore(db)

	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateUser(context.Background(), &store.UserRecord{ID: "ghost"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateUser(t *testing.T) {
	db, mock := newMock(t)
	s := NewUserStore(db)
	login := pgEpoch

	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET`).
		WithArgs("u1", "alice@example.com", "hash", sqlmock.AnyArg(), sqlmock.AnyArg(), nil, false, login, pgEpoch).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateUser(context.Background(), &store.UserRecord{
		ID: "u1", Email: "alice@example.com", PasswordHash: "hash", Role: store.RoleViewer,
		LastLogin: &login, UpdatedAt: pgEpoch,
	})
	require.NoError(t, err)
}

func TestListActiveResetTokens(t *testing.T) {
	db, mock := newMock(t)
	s := NewResetTokenStore(db)

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+reset_tokens\s+WHERE\s+used\s*=\s*FALSE\s+AND\s+expires_at\s*>\s*\$1$`).
		WithArgs(pgEpoch).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "used", "created_at"}).
			AddRow("t1", "u1", "h1", pgEpoch.Add(time.Hour), false, pgEpoch).
			AddRow("t2", "u2", "h2", pgEpoch.Add(time.Hour), false, pgEpoch))

	tokens, err := s.ListActiveResetTokens(context.Background(), pgEpoch)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "h2", tokens[1].TokenHash)
}

func TestMarkResetTokenUsed(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "first use wins",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(`(?s)^UPDATE\s+reset_tokens\s+SET\s+used`).WithArgs("t1").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "already used",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(`(?s)^UPDATE\s+reset_tokens`).WithArgs("t1").
					WillReturnResult(sqlmock.NewResult(0, 0))
				m.ExpectQuery(`^SELECT\s+used\s+FROM\s+reset_tokens`).WithArgs("t1").
					WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(true))
			},
			wantErr: store.ErrResetTokenUsed,
		},
		{
			name: "missing",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(`(?s)^UPDATE\s+reset_tokens`).WithArgs("t1").
					WillReturnResult(sqlmock.NewResult(0, 0))
				m.ExpectQuery(`^SELECT\s+used\s+FROM\s+reset_tokens`).WithArgs("t1").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: store.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			tt.setup(mock)
			err := NewResetTokenStore(db).MarkResetTokenUsed(context.Background(), "t1")
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDeleteExpiredResetTokens(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`^DELETE\s+FROM\s+reset_tokens`).WithArgs(pgEpoch).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewResetTokenStore(db).DeleteExpiredResetTokens(context.Background(), pgEpoch)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestMigrateRunsEmbeddedMigrations(t *testing.T) {
	db, _ := newMock(t)
	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)

	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestMigrateWrapsError(t *testing.T) {
	db, _ := newMock(t)
	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	gooseUp = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	err := Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration error")
}
