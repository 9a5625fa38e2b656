package session

import (
	"context"
	"time"
)

// Store persists sessions and their lookup indexes. Implementations must
// keep the user index and the refresh-hash index consistent with the
// primary records: after Delete, no index resolves to the removed session.
//
// Store methods do not evaluate expiry; that is the Manager's job.
type Store interface {
	// Save inserts or replaces sess, moving the refresh-hash index when the
	// bound token changed.
	Save(ctx context.Context, sess *Session) error
	// Get returns ErrSessionNotFound when id is unknown.
	Get(ctx context.Context, id string) (*Session, error)
	// GetByRefreshHash resolves a session through the refresh-token index.
	GetByRefreshHash(ctx context.Context, hash [32]byte) (*Session, error)
	// Touch sets LastActivity without changing anything else.
	Touch(ctx context.Context, id string, at time.Time) error
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	// DeleteByUser removes every session of userID and reports how many
	// existed.
	DeleteByUser(ctx context.Context, userID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	// List returns every stored session, expired ones included. It is meant
	// for the sweeper, not request paths.
	List(ctx context.Context) ([]*Session, error)
}
