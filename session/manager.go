package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/authcore/internal/keylock"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

const (
	DefaultSessionTimeout        = 24 * time.Hour
	DefaultMaxSessionsPerUser    = 5
	DefaultSuspiciousIPThreshold = 3

	lockPrefix = "session:"
)

// Config controls session lifetime and per-user limits.
type Config struct {
	SessionTimeout     time.Duration
	MaxSessionsPerUser int
	// SuspiciousIPThreshold is the number of distinct IPs a user's live
	// sessions may span before GetSuspiciousSessions reports them.
	SuspiciousIPThreshold int
}

// DefaultConfig returns a 24h timeout, five sessions per user and an
// IP threshold of three.
func DefaultConfig() Config {
	return Config{
		SessionTimeout:        DefaultSessionTimeout,
		MaxSessionsPerUser:    DefaultMaxSessionsPerUser,
		SuspiciousIPThreshold: DefaultSuspiciousIPThreshold,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger used for swallowed cleanup failures.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithLocker shares a per-key locker with other components. Manager keys
// are namespaced, so sharing never makes a caller's own lock reentrant.
func WithLocker(l *keylock.Locker) Option {
	return func(m *Manager) {
		if l != nil {
			m.locks = l
		}
	}
}

// WithEvictionHook registers fn to run for every session evicted by the
// per-user cap. fn runs under the user's lock and must not call back into
// the Manager.
func WithEvictionHook(fn func(*Session)) Option {
	return func(m *Manager) { m.onEvict = fn }
}

// Manager implements the session lifecycle on top of a Store.
//
// Every mutation of a user's session set runs under that user's lock, so
// count-evict-insert, destroy-on-expiry and sweep deletion never interleave.
type Manager struct {
	store   Store
	config  Config
	locks   *keylock.Locker
	now     func() time.Time
	log     zerolog.Logger
	onEvict func(*Session)
}

// NewManager validates cfg, filling zero fields with defaults.
func NewManager(store Store, cfg Config, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.MaxSessionsPerUser == 0 {
		cfg.MaxSessionsPerUser = DefaultMaxSessionsPerUser
	}
	if cfg.SuspiciousIPThreshold == 0 {
		cfg.SuspiciousIPThreshold = DefaultSuspiciousIPThreshold
	}
	if cfg.SessionTimeout < 0 {
		return nil, errors.New("session timeout must be positive")
	}
	if cfg.MaxSessionsPerUser < 0 {
		return nil, errors.New("max sessions per user must be positive")
	}
	if cfg.SuspiciousIPThreshold < 0 {
		return nil, errors.New("suspicious IP threshold must be positive")
	}

	m := &Manager{
		store:  store,
		config: cfg,
		locks:  keylock.New(),
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) lockUser(userID string) func() {
	return m.locks.Lock(lockPrefix + userID)
}

// CreateSession admits a new session for userID, bound to refreshToken.
// When the user already holds MaxSessionsPerUser live sessions the oldest
// are evicted first; a login is never refused for capacity.
func (m *Manager) CreateSession(ctx context.Context, userID, refreshToken string, meta Metadata) (*Session, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	unlock := m.lockUser(userID)
	defer unlock()

	now := m.now()
	live, err := m.liveSessionsLocked(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	for len(live) >= m.config.MaxSessionsPerUser {
		oldest := live[0]
		if err := m.store.Delete(ctx, oldest.ID); err != nil {
			return nil, err
		}
		m.log.Debug().Str("user_id", userID).Str("session_id", oldest.ID).Msg("session evicted")
		if m.onEvict != nil {
			m.onEvict(oldest)
		}
		live = live[1:]
	}

	sess := &Session{
		ID:           ksuid.New().String(),
		UserID:       userID,
		RefreshHash:  HashRefreshToken(refreshToken),
		UserAgent:    meta.UserAgent,
		IPAddress:    meta.IPAddress,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.config.SessionTimeout),
		LastActivity: now,
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// ValidateSession returns the session with a refreshed LastActivity. An
// expired session is destroyed before ErrSessionExpired is returned.
func (m *Manager) ValidateSession(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.validateLocked(ctx, sess.UserID, func() (*Session, error) {
		return m.store.Get(ctx, id)
	})
}

// ValidateSessionByToken is ValidateSession keyed by the bound refresh
// token, resolved through the refresh-hash index.
func (m *Manager) ValidateSessionByToken(ctx context.Context, refreshToken string) (*Session, error) {
	hash := HashRefreshToken(refreshToken)
	sess, err := m.store.GetByRefreshHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return m.validateLocked(ctx, sess.UserID, func() (*Session, error) {
		return m.store.GetByRefreshHash(ctx, hash)
	})
}

func (m *Manager) validateLocked(ctx context.Context, userID string, load func() (*Session, error)) (*Session, error) {
	unlock := m.lockUser(userID)
	defer unlock()

	sess, err := load()
	if err != nil {
		return nil, err
	}

	now := m.now()
	if !sess.Live(now) {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	if err := m.store.Touch(ctx, sess.ID, now); err != nil {
		return nil, err
	}
	sess.LastActivity = now
	return sess, nil
}

// RotateRefreshToken rebinds a live session from currentToken to newToken.
// It is a compare-and-swap: when currentToken is no longer the bound token,
// because a concurrent refresh already rotated it, ErrRefreshTokenReused is
// returned and nothing changes.
func (m *Manager) RotateRefreshToken(ctx context.Context, id, currentToken, newToken string) (*Session, error) {
	return m.mutateLive(ctx, id, func(sess *Session, now time.Time) error {
		if !sess.BoundTo(currentToken) {
			return ErrRefreshTokenReused
		}
		sess.RefreshHash = HashRefreshToken(newToken)
		sess.LastActivity = now
		return nil
	})
}

// ExtendSession pushes ExpiresAt to now+d when that is later than the
// current expiry. It never shortens a session.
func (m *Manager) ExtendSession(ctx context.Context, id string, d time.Duration) (*Session, error) {
	return m.mutateLive(ctx, id, func(sess *Session, now time.Time) error {
		if next := now.Add(d); next.After(sess.ExpiresAt) {
			sess.ExpiresAt = next
		}
		sess.LastActivity = now
		return nil
	})
}

func (m *Manager) mutateLive(ctx context.Context, id string, mutate func(*Session, time.Time) error) (*Session, error) {
	probe, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := m.lockUser(probe.UserID)
	defer unlock()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if !sess.Live(now) {
		if err := m.store.Delete(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	if err := mutate(sess, now); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// DestroySession removes one session. Unknown IDs are a no-op.
func (m *Manager) DestroySession(ctx context.Context, id string) error {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	unlock := m.lockUser(sess.UserID)
	defer unlock()
	return m.store.Delete(ctx, id)
}

// DestroyUserSessions removes every session of userID and reports how many
// were removed.
func (m *Manager) DestroyUserSessions(ctx context.Context, userID string) (int, error) {
	unlock := m.lockUser(userID)
	defer unlock()
	return m.store.DeleteByUser(ctx, userID)
}

// UserSessions returns the user's live sessions, oldest first.
func (m *Manager) UserSessions(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	live := sessions[:0]
	for _, sess := range sessions {
		if sess.Live(now) {
			live = append(live, sess)
		}
	}
	sortByCreation(live)
	return live, nil
}

// CleanupExpiredSessions deletes every expired session and reports how many
// were removed. Each deletion runs under the owning user's lock and
// re-checks expiry there, so a session extended concurrently survives.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now()
	expired := make(map[string][]string)
	for _, sess := range all {
		if !sess.Live(now) {
			expired[sess.UserID] = append(expired[sess.UserID], sess.ID)
		}
	}

	removed := 0
	for userID, ids := range expired {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		n, err := m.sweepUser(ctx, userID, ids)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (m *Manager) sweepUser(ctx context.Context, userID string, ids []string) (int, error) {
	unlock := m.lockUser(userID)
	defer unlock()

	now := m.now()
	n := 0
	for _, id := range ids {
		sess, err := m.store.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if sess.Live(now) {
			continue
		}
		if err := m.store.Delete(ctx, id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// GetSuspiciousSessions returns all of the user's live sessions when they
// originate from more than SuspiciousIPThreshold distinct IP addresses, and
// nil otherwise. It only reports; acting on the signal is up to the caller.
func (m *Manager) GetSuspiciousSessions(ctx context.Context, userID string) ([]*Session, error) {
	live, err := m.UserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	ips := make(map[string]struct{}, len(live))
	for _, sess := range live {
		if sess.IPAddress != "" {
			ips[sess.IPAddress] = struct{}{}
		}
	}
	if len(ips) <= m.config.SuspiciousIPThreshold {
		return nil, nil
	}
	return live, nil
}

// liveSessionsLocked lists the user's sessions oldest first, deleting any
// that have expired along the way. Caller holds the user's lock.
func (m *Manager) liveSessionsLocked(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	live := sessions[:0]
	for _, sess := range sessions {
		if sess.Live(now) {
			live = append(live, sess)
			continue
		}
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			m.log.Warn().Err(err).Str("session_id", sess.ID).Msg("expired session cleanup failed")
		}
	}
	sortByCreation(live)
	return live, nil
}

func sortByCreation(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
