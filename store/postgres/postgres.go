package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MrEthical07/authcore/store"
)

const uniqueViolation = "23505"

// DBTX is the subset of database/sql used by the stores. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens a pooled connection to dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// UserStore is a Postgres-backed store.UserStore.
type UserStore struct {
	db DBTX
}

var _ store.UserStore = (*UserStore)(nil)

// NewUserStore returns a UserStore over db.
func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, password_hash, role, failed_login_attempts, locked_until, is_active, last_login, created_at, updated_at`

func (s *UserStore) CreateUser(ctx context.Context, user *store.UserRecord) error {
	query :=
		`INSERT INTO users (` + userColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		store.NormalizeEmail(user.Email),
		user.PasswordHash,
		int16(user.Role),
		int64(user.FailedLoginAttempts),
		nullTime(user.LockedUntil),
		user.IsActive,
		nullTime(user.LastLogin),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *UserStore) GetUserByID(ctx context.Context, id string) (*store.UserRecord, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE id = $1`
	return s.getOne(ctx, query, id)
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*store.UserRecord, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE email = $1`
	return s.getOne(ctx, query, store.NormalizeEmail(email))
}

func (s *UserStore) getOne(ctx context.Context, query string, arg any) (*store.UserRecord, error) {
	var (
		u           store.UserRecord
		role        int16
		attempts    int64
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&role,
		&attempts,
		&lockedUntil,
		&u.IsActive,
		&lastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.Role = store.Role(role)
	u.FailedLoginAttempts = uint32(attempts)
	u.LockedUntil = timePtr(lockedUntil)
	u.LastLogin = timePtr(lastLogin)
	return &u, nil
}

func (s *UserStore) UpdateUser(ctx context.Context, user *store.UserRecord) error {
	query :=
		`UPDATE users SET email = $2, password_hash = $3, role = $4, failed_login_attempts = $5,
		 locked_until = $6, is_active = $7, last_login = $8, updated_at = $9
		 WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		user.ID,
		store.NormalizeEmail(user.Email),
		user.PasswordHash,
		int16(user.Role),
		int64(user.FailedLoginAttempts),
		nullTime(user.LockedUntil),
		user.IsActive,
		nullTime(user.LastLogin),
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ResetTokenStore is a Postgres-backed store.ResetTokenStore.
type ResetTokenStore struct {
	db DBTX
}

var _ store.ResetTokenStore = (*ResetTokenStore)(nil)

// NewResetTokenStore returns a ResetTokenStore over db.
func NewResetTokenStore(db DBTX) *ResetTokenStore {
	return &ResetTokenStore{db: db}
}

func (s *ResetTokenStore) SaveResetToken(ctx context.Context, token *store.ResetToken) error {
	query :=
		`INSERT INTO reset_tokens (id, user_id, token_hash, expires_at, used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.Used, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *ResetTokenStore) ListActiveResetTokens(ctx context.Context, now time.Time) ([]*store.ResetToken, error) {
	query :=
		`SELECT id, user_id, token_hash, expires_at, used, created_at FROM reset_tokens
		 WHERE used = FALSE AND expires_at > $1`

	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*store.ResetToken
	for rows.Next() {
		t := &store.ResetToken{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// MarkResetTokenUsed flips used with a conditional UPDATE so only one
// concurrent caller observes an affected row.
func (s *ResetTokenStore) MarkResetTokenUsed(ctx context.Context, id string) error {
	query :=
		`UPDATE reset_tokens SET used = TRUE
		 WHERE id = $1 AND used = FALSE`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 1 {
		return nil
	}

	var used bool
	err = s.db.QueryRowContext(ctx, `SELECT used FROM reset_tokens WHERE id = $1`, id).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return store.ErrResetTokenUsed
}

// DeleteExpiredResetTokens removes tokens that expired before now and
// returns how many were deleted.
func (s *ResetTokenStore) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reset_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
