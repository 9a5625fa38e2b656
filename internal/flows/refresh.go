package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

// RefreshResult is the flow-local refresh response shape.
type RefreshResult struct {
	User         *store.UserRecord
	AccessToken  string
	RefreshToken string
	Session      *session.Session
}

// RefreshMetrics carries metric IDs needed by the refresh flow.
type RefreshMetrics struct {
	RefreshSuccess int
	RefreshFailure int
	RefreshReuse   int
}

// RefreshEvents carries audit event names used by the refresh flow.
type RefreshEvents struct {
	RefreshSuccess string
	RefreshFailure string
	RefreshReuse   string
}

// RefreshErrors carries host-level sentinel errors used by the refresh flow.
type RefreshErrors struct {
	EngineNotReady     error
	InvalidToken       error
	UserNotFound       error
	AccountDeactivated error
}

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	Common

	VerifyRefreshToken     func(string) (*jwt.Claims, error)
	ValidateSessionByToken func(context.Context, string) (*session.Session, error)
	IssueTokens            func(*store.UserRecord) (string, string, error)
	RotateRefreshToken     func(ctx context.Context, id, current, next string) (*session.Session, error)

	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  RefreshErrors
}

// RunRefresh exchanges a refresh token for a new token pair. The session
// bound to the presented token is rotated to the new refresh token; a
// token that lost a concurrent rotation is rejected with the session error.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (*RefreshResult, error) {
	deps.fill()
	if !deps.ready() ||
		deps.VerifyRefreshToken == nil ||
		deps.ValidateSessionByToken == nil ||
		deps.IssueTokens == nil ||
		deps.RotateRefreshToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	fail := func(userID, sessionID string, err error) error {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, userID, sessionID, err, nil)
		return err
	}

	claims, err := deps.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, fail("", "", err)
	}

	sess, err := deps.ValidateSessionByToken(ctx, refreshToken)
	if err != nil {
		return nil, fail(claims.UserID, "", err)
	}
	if sess.UserID != claims.UserID {
		return nil, fail(claims.UserID, sess.ID, deps.Errors.InvalidToken)
	}

	user, err := deps.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fail(claims.UserID, sess.ID, deps.Errors.UserNotFound)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, fail(user.ID, sess.ID, deps.Errors.AccountDeactivated)
	}

	access, refresh, err := deps.IssueTokens(user)
	if err != nil {
		return nil, err
	}
	rotated, err := deps.RotateRefreshToken(ctx, sess.ID, refreshToken, refresh)
	if err != nil {
		if errors.Is(err, session.ErrRefreshTokenReused) {
			deps.MetricInc(deps.Metrics.RefreshReuse)
			deps.EmitAudit(ctx, deps.Events.RefreshReuse, false, user.ID, sess.ID, err, nil)
		}
		return nil, fail(user.ID, sess.ID, err)
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	deps.EmitAudit(ctx, deps.Events.RefreshSuccess, true, user.ID, rotated.ID, nil, nil)

	return &RefreshResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		Session:      rotated,
	}, nil
}
