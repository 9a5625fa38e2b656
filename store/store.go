package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrResetTokenUsed = errors.New("reset token already used")
	ErrInvalidRole    = errors.New("invalid role")
)

// UserStore persists user records. Emails are stored normalized and are
// unique.
type UserStore interface {
	// CreateUser inserts a new record. It returns ErrDuplicateEmail when the
	// normalized email is taken.
	CreateUser(ctx context.Context, user *UserRecord) error
	GetUserByID(ctx context.Context, id string) (*UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)
	// UpdateUser replaces the stored record with the same ID. It returns
	// ErrNotFound when no such record exists.
	UpdateUser(ctx context.Context, user *UserRecord) error
}

// ResetTokenStore persists password-reset tokens.
type ResetTokenStore interface {
	SaveResetToken(ctx context.Context, token *ResetToken) error
	// ListActiveResetTokens returns tokens that are unused and unexpired at
	// now.
	ListActiveResetTokens(ctx context.Context, now time.Time) ([]*ResetToken, error)
	// MarkResetTokenUsed flips Used on the token. It is a compare-and-set:
	// exactly one caller wins, later callers get ErrResetTokenUsed.
	MarkResetTokenUsed(ctx context.Context, id string) error
}
