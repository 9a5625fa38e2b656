package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	User         *store.UserRecord
	AccessToken  string
	RefreshToken string
	Session      *session.Session
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess       int
	LoginFailure       int
	AccountLocked      int
	SessionCreated     int
	SuspiciousSessions int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess       string
	LoginFailure       string
	AccountLocked      string
	SuspiciousSessions string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	AccountLocked      error
	AccountDeactivated error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Common

	MaxLoginAttempts int
	LockoutDuration  time.Duration
	// DummyHash is verified against when the email is unknown, so both
	// branches spend the same derivation cost.
	DummyHash string

	ClientIPFromContext  func(context.Context) string
	UserAgentFromContext func(context.Context) string

	GetUserByEmail     func(context.Context, string) (*store.UserRecord, error)
	VerifyPassword     func(context.Context, string, string) (bool, error)
	IssueTokens        func(*store.UserRecord) (string, string, error)
	CreateSession      func(context.Context, string, string, session.Metadata) (*session.Session, error)
	SuspiciousSessions func(context.Context, string) ([]*session.Session, error)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin authenticates email/password, applies the lockout state machine
// and, on success, issues a token pair bound to a new session.
//
// Unknown email and wrong password yield the same InvalidCredentials error.
// Deactivation is checked before the lock, and the lock before the
// password, so a locked account is refused even with the right password.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*LoginResult, error) {
	deps.fill()
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.UserAgentFromContext == nil {
		deps.UserAgentFromContext = func(context.Context) string { return "" }
	}
	if !deps.ready() ||
		deps.GetUserByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.IssueTokens == nil ||
		deps.CreateSession == nil {
		return nil, deps.Errors.EngineNotReady
	}

	fail := func(userID, reason string, err error) error {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, "", err, func() map[string]string {
			return map[string]string{
				"identifier": email,
				"reason":     reason,
			}
		})
		return err
	}

	if email == "" || password == "" {
		return nil, fail("", "empty_credentials", deps.Errors.InvalidCredentials)
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if _, err := deps.VerifyPassword(ctx, password, deps.DummyHash); err != nil {
				return nil, err
			}
			return nil, fail("", "user_not_found", deps.Errors.InvalidCredentials)
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, fail(user.ID, "deactivated", deps.Errors.AccountDeactivated)
	}
	if user.IsLocked(deps.Now()) {
		return nil, fail(user.ID, "locked", deps.Errors.AccountLocked)
	}

	ok, err := deps.VerifyPassword(ctx, password, user.PasswordHash)
	if err != nil {
		return nil, err
	}

	res, locked, err := settleLogin(ctx, user, ok, deps)
	if locked != nil {
		deps.MetricInc(deps.Metrics.AccountLocked)
		deps.EmitAudit(ctx, deps.Events.AccountLocked, true, user.ID, "", nil, func() map[string]string {
			return map[string]string{
				"locked_until": locked.UTC().Format(time.RFC3339),
			}
		})
	}
	if err != nil {
		return nil, err
	}
	fresh, sess := res.User, res.Session

	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, fresh.ID, sess.ID, nil, nil)

	if deps.SuspiciousSessions != nil {
		flagged, err := deps.SuspiciousSessions(ctx, fresh.ID)
		if err != nil {
			deps.Warn("suspicious session check failed", err)
		} else if len(flagged) > 0 {
			deps.MetricInc(deps.Metrics.SuspiciousSessions)
			deps.EmitAudit(ctx, deps.Events.SuspiciousSessions, true, fresh.ID, sess.ID, nil, func() map[string]string {
				return map[string]string{
					"sessions": strconv.Itoa(len(flagged)),
				}
			})
		}
	}

	return res, nil
}

// settleLogin applies the verdict under the user's lock. On failure it
// returns the lock deadline when this attempt triggered a lockout. On
// success the session is created before the lock is released, so a
// concurrent deactivation or role change cannot miss it.
func settleLogin(ctx context.Context, user *store.UserRecord, ok bool, deps LoginDeps) (*LoginResult, *time.Time, error) {
	unlock := deps.LockUser(user.ID)
	defer unlock()

	fresh, err := deps.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	now := deps.Now()
	switch {
	case !fresh.IsActive:
		return nil, nil, loginFailure(ctx, deps, user.ID, "deactivated", deps.Errors.AccountDeactivated)
	case fresh.IsLocked(now):
		return nil, nil, loginFailure(ctx, deps, user.ID, "locked", deps.Errors.AccountLocked)
	case fresh.PasswordHash != user.PasswordHash:
		// Password changed while we were hashing; the verdict is stale.
		return nil, nil, loginFailure(ctx, deps, user.ID, "password_changed", deps.Errors.InvalidCredentials)
	}

	if !ok {
		fresh.LockedUntil = nil
		fresh.FailedLoginAttempts++
		attempts := fresh.FailedLoginAttempts
		var lockedUntil *time.Time
		if deps.MaxLoginAttempts > 0 && int(attempts) >= deps.MaxLoginAttempts {
			until := now.Add(deps.LockoutDuration)
			fresh.LockedUntil = &until
			fresh.FailedLoginAttempts = 0
			lockedUntil = &until
		}
		fresh.UpdatedAt = now
		if err := deps.UpdateUser(ctx, fresh); err != nil {
			return nil, nil, err
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.ID, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason":   "password_mismatch",
				"attempts": strconv.FormatUint(uint64(attempts), 10),
			}
		})
		return nil, lockedUntil, deps.Errors.InvalidCredentials
	}

	fresh.ClearLockout()
	fresh.LastLogin = &now
	fresh.UpdatedAt = now
	if err := deps.UpdateUser(ctx, fresh); err != nil {
		return nil, nil, err
	}

	access, refresh, err := deps.IssueTokens(fresh)
	if err != nil {
		return nil, nil, err
	}
	sess, err := deps.CreateSession(ctx, fresh.ID, refresh, session.Metadata{
		IPAddress: deps.ClientIPFromContext(ctx),
		UserAgent: deps.UserAgentFromContext(ctx),
	})
	if err != nil {
		return nil, nil, err
	}
	return &LoginResult{
		User:         fresh,
		AccessToken:  access,
		RefreshToken: refresh,
		Session:      sess,
	}, nil, nil
}

func loginFailure(ctx context.Context, deps LoginDeps, userID, reason string, err error) error {
	deps.MetricInc(deps.Metrics.LoginFailure)
	deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, "", err, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return err
}
