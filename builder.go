package authcore

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/keylock"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/redisstore"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// dummyPassword is hashed once per engine so that logins for unknown
// emails spend a full derivation.
const dummyPassword = "authcore-dummy-password"

// Builder defines a public type used by authcore APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users        store.UserStore
	resetTokens  store.ResetTokenStore
	sessionStore session.Store

	auditSink AuditSink
	log       zerolog.Logger
	now       func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New starts from DefaultConfig, in-memory stores and a disabled logger.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    zerolog.Nop(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration. Config holds no references,
// so the builder keeps its own copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis backs sessions and reset tokens with client unless an explicit
// store was configured for them.
//
// Per-user locking stays process-local. When several engines share one
// Redis, MaxSessionsPerUser is best effort under simultaneous logins from
// different instances; the next login evicts back down to the cap.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(s store.UserStore) *Builder {
	b.users = s
	return b
}

func (b *Builder) WithResetTokenStore(s store.ResetTokenStore) *Builder {
	b.resetTokens = s
	return b
}

func (b *Builder) WithSessionStore(s session.Store) *Builder {
	b.sessionStore = s
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// A nil sink with audit enabled drops every event.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for failures the engine swallows.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithClock overrides the time source of every component. Tests use it to
// step through lockout and expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when the configuration is invalid or a component rejects its settings.
// A Builder can be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	users := b.users
	if users == nil {
		users = store.NewMemoryUserStore()
	}
	resetTokens := b.resetTokens
	if resetTokens == nil {
		if b.redis != nil {
			resetTokens = redisstore.NewResetTokenStore(b.redis, "", 0)
		} else {
			resetTokens = store.NewMemoryResetTokenStore()
		}
	}
	sessionStore := b.sessionStore
	if sessionStore == nil {
		if b.redis != nil {
			sessionStore = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.RedisRetention)
		} else {
			sessionStore = session.NewMemoryStore()
		}
	}

	hasher, err := password.NewHasher(cfg.Password.hasherConfig())
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  []byte(cfg.JWT.Secret),
		RefreshSecret: []byte(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTokenExpiry,
		RefreshTTL:    cfg.JWT.RefreshTokenExpiry,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		users:       users,
		resetTokens: resetTokens,
		hasher:      hasher,
		policy:      cfg.Password.policy(),
		jwtManager:  jm,
		locks:       keylock.New(),
		log:         b.log.With().Str("component", "authcore").Logger(),
		now:         now,
		validate:    newValidator(),
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink, b.log.With().Str("component", "authcore").Logger()),
		metrics:     NewMetrics(cfg.Metrics),
	}

	sm, err := session.NewManager(sessionStore, session.Config{
		SessionTimeout:        cfg.Session.Timeout,
		MaxSessionsPerUser:    cfg.Session.MaxSessionsPerUser,
		SuspiciousIPThreshold: cfg.Session.SuspiciousIPThreshold,
	},
		session.WithClock(now),
		session.WithLocker(engine.locks),
		session.WithLogger(b.log),
		session.WithEvictionHook(engine.onSessionEvicted),
	)
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.sessions = sm
	engine.sweeper = session.NewSweeper(sm, cfg.Session.CleanupInterval, b.log)

	dummy, err := hasher.Hash(context.Background(), dummyPassword)
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.dummyHash = dummy

	b.built = true

	return engine, nil
}

// newValidator reports struct fields under their json names so
// ValidationError keys match what clients sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}
