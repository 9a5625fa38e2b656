package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/keylock"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/ratelimit"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const userLockPrefix = "user:"

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// All methods are safe for concurrent use.
type Engine struct {
	config      Config
	users       store.UserStore
	resetTokens store.ResetTokenStore
	hasher      *password.Hasher
	policy      password.Policy
	jwtManager  *jwt.Manager
	sessions    *session.Manager
	sweeper     *session.Sweeper
	locks       *keylock.Locker
	validate    *validator.Validate
	audit       *auditDispatcher
	metrics     *Metrics
	log         zerolog.Logger
	now         func() time.Time
	dummyHash   string
}

// Start schedules the expired-session sweep.
func (e *Engine) Start() error {
	if e == nil || e.sweeper == nil {
		return ErrEngineNotReady
	}
	return e.sweeper.Start()
}

// Close describes the close operation and its observable behavior.
//
// Close stops the sweeper, waiting for a sweep in progress, then drains the audit buffer.
// Close is safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.sweeper != nil {
		if err := e.sweeper.Stop(context.Background()); err != nil {
			e.log.Warn().Err(err).Msg("session sweeper stop failed")
		}
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) lockUser(userID string) func() {
	return e.locks.Lock(userLockPrefix + userID)
}

func (e *Engine) warn(msg string, err error) {
	e.log.Warn().Err(err).Msg(msg)
}

func (e *Engine) common() flows.Common {
	return flows.Common{
		Now:         e.now,
		LockUser:    e.lockUser,
		MetricInc:   func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit:   e.emitAudit,
		Warn:        e.warn,
		GetUserByID: e.users.GetUserByID,
		UpdateUser:  e.users.UpdateUser,
	}
}

func (e *Engine) issueTokens(user *store.UserRecord) (string, string, error) {
	payload := jwt.Payload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role.String(),
	}
	access, err := e.jwtManager.GenerateAccessToken(payload)
	if err != nil {
		return "", "", err
	}
	refresh, err := e.jwtManager.GenerateRefreshToken(payload)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (e *Engine) tokenPair(access, refresh, sessionID string) TokenPair {
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresIn:  e.jwtManager.AccessTTL(),
		RefreshExpiresIn: e.jwtManager.RefreshTTL(),
		SessionID:        sessionID,
	}
}

func (e *Engine) onSessionEvicted(sess *session.Session) {
	e.metricInc(MetricSessionEvicted)
	e.emitAudit(context.Background(), auditEventSessionEvicted, true, sess.UserID, sess.ID, nil, nil)
}

// Login describes the login operation and its observable behavior.
//
// An unknown email and a wrong password both fail with ErrInvalidCredentials.
// A deactivated account fails with ErrAccountDeactivated and a locked one with ErrAccountLocked,
// even when the password is right. Client IP and user agent are taken from ctx.
func (e *Engine) Login(ctx context.Context, email, pw string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, internalError("login", err)
	}

	res, err := flows.RunLogin(ctx, store.NormalizeEmail(email), pw, flows.LoginDeps{
		Common:               e.common(),
		MaxLoginAttempts:     e.config.Security.MaxLoginAttempts,
		LockoutDuration:      e.config.Security.LockoutDuration,
		DummyHash:            e.dummyHash,
		ClientIPFromContext:  clientIPFromContext,
		UserAgentFromContext: userAgentFromContext,
		GetUserByEmail:       e.users.GetUserByEmail,
		VerifyPassword:       e.hasher.Verify,
		IssueTokens:          e.issueTokens,
		CreateSession:        e.sessions.CreateSession,
		SuspiciousSessions:   e.sessions.GetSuspiciousSessions,
		Metrics: flows.LoginMetrics{
			LoginSuccess:       int(MetricLoginSuccess),
			LoginFailure:       int(MetricLoginFailure),
			AccountLocked:      int(MetricAccountLocked),
			SessionCreated:     int(MetricSessionCreated),
			SuspiciousSessions: int(MetricSuspiciousSessions),
		},
		Events: flows.LoginEvents{
			LoginSuccess:       auditEventLoginSuccess,
			LoginFailure:       auditEventLoginFailure,
			AccountLocked:      auditEventAccountLocked,
			SuspiciousSessions: auditEventSuspiciousSessions,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			AccountLocked:      ErrAccountLocked,
			AccountDeactivated: ErrAccountDeactivated,
		},
	})
	if err != nil {
		return nil, internalError("login", err)
	}

	return &LoginResult{
		User:   publicUser(res.User),
		Tokens: e.tokenPair(res.AccessToken, res.RefreshToken, res.Session.ID),
	}, nil
}

// ValidateToken describes the validatetoken operation and its observable behavior.
//
// A cryptographically valid access token is necessary but not sufficient: its subject must still exist
// and be active. Token failures map to ErrTokenExpired, ErrInvalidSignature, ErrInvalidTokenType or
// ErrInvalidToken.
func (e *Engine) ValidateToken(ctx context.Context, accessToken string) (*PublicUser, *jwt.Claims, error) {
	if e == nil {
		return nil, nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()

	claims, err := e.jwtManager.VerifyToken(accessToken, false)
	if err != nil {
		e.metricInc(MetricTokenValidateFailure)
		return nil, nil, tokenError(err)
	}

	user, err := e.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		e.metricInc(MetricTokenValidateFailure)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, internalError("token_validation", err)
	}
	if !user.IsActive {
		e.metricInc(MetricTokenValidateFailure)
		return nil, nil, ErrAccountDeactivated
	}

	return publicUser(user), claims, nil
}

// RefreshToken describes the refreshtoken operation and its observable behavior.
//
// The presented refresh token must verify, its session must be live and its user active. The session
// is rebound to the new refresh token; presenting the old one afterwards fails with ErrInvalidToken.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	res, err := flows.RunRefresh(ctx, refreshToken, flows.RefreshDeps{
		Common: e.common(),
		VerifyRefreshToken: func(tok string) (*jwt.Claims, error) {
			claims, err := e.jwtManager.VerifyToken(tok, true)
			if err != nil {
				return nil, tokenError(err)
			}
			return claims, nil
		},
		ValidateSessionByToken: func(ctx context.Context, tok string) (*session.Session, error) {
			sess, err := e.sessions.ValidateSessionByToken(ctx, tok)
			return sess, sessionError(err)
		},
		IssueTokens: e.issueTokens,
		RotateRefreshToken: func(ctx context.Context, id, current, next string) (*session.Session, error) {
			sess, err := e.sessions.RotateRefreshToken(ctx, id, current, next)
			return sess, sessionError(err)
		},
		Metrics: flows.RefreshMetrics{
			RefreshSuccess: int(MetricRefreshSuccess),
			RefreshFailure: int(MetricRefreshFailure),
			RefreshReuse:   int(MetricRefreshReuseDetected),
		},
		Events: flows.RefreshEvents{
			RefreshSuccess: auditEventRefreshSuccess,
			RefreshFailure: auditEventRefreshFailure,
			RefreshReuse:   auditEventRefreshReuse,
		},
		Errors: flows.RefreshErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidToken:       ErrInvalidToken,
			UserNotFound:       ErrUserNotFound,
			AccountDeactivated: ErrAccountDeactivated,
		},
	})
	if err != nil {
		return nil, internalError("refresh", err)
	}

	pair := e.tokenPair(res.AccessToken, res.RefreshToken, res.Session.ID)
	return &pair, nil
}

// Logout destroys one session. Unknown IDs are not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.DestroySession(ctx, sessionID); err != nil {
		return internalError("logout", err)
	}
	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, nil)
	return nil
}

// LogoutAll destroys every session of userID and reports how many there
// were.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	unlock := e.lockUser(userID)
	n, err := e.sessions.DestroyUserSessions(ctx, userID)
	unlock()
	if err != nil {
		return 0, internalError("logout_all", err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"sessions_revoked": strconv.Itoa(n),
		}
	})
	return n, nil
}

// NewRateLimiter builds a limiter from the rateLimit configuration for the
// transport layer. A nil client yields an in-process limiter.
func (e *Engine) NewRateLimiter(client redis.UniversalClient) (ratelimit.Limiter, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if client == nil {
		return ratelimit.NewMemoryLimiter(e.config.RateLimit.limiterConfig(), e.now)
	}
	return ratelimit.NewRedisLimiter(client, e.config.RateLimit.RedisPrefix, e.config.RateLimit.limiterConfig(), e.now)
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired.withCause(err)
	case errors.Is(err, jwt.ErrInvalidSignature):
		return ErrInvalidSignature.withCause(err)
	case errors.Is(err, jwt.ErrInvalidTokenType):
		return ErrInvalidTokenType.withCause(err)
	default:
		return ErrInvalidToken.withCause(err)
	}
}

func sessionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrSessionNotFound.withCause(err)
	case errors.Is(err, session.ErrSessionExpired):
		return ErrSessionExpired.withCause(err)
	case errors.Is(err, session.ErrRefreshTokenReused):
		return ErrInvalidToken.withCause(err)
	default:
		return err
	}
}
