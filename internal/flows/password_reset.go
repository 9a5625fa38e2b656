package flows

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/authcore/store"
)

// PasswordResetMetrics carries metric IDs needed by the reset flow.
type PasswordResetMetrics struct {
	ResetSuccess int
	ResetFailure int
}

// PasswordResetEvents carries audit event names used by the reset flow.
type PasswordResetEvents struct {
	ResetSuccess string
	ResetFailure string
}

// PasswordResetErrors carries host-level sentinel errors used by the reset flow.
type PasswordResetErrors struct {
	EngineNotReady    error
	InvalidResetToken error
	UserNotFound      error
}

// PasswordResetDeps captures reset completion dependencies.
type PasswordResetDeps struct {
	Common

	// CheckStrength returns a non-nil error when the password fails policy.
	CheckStrength         func(string) error
	ListActiveResetTokens func(context.Context) ([]*store.ResetToken, error)
	MatchResetToken       func(token, storedHash string) bool
	MarkResetTokenUsed    func(context.Context, string) error
	HashPassword          func(context.Context, string) (string, error)
	DestroyUserSessions   func(context.Context, string) (int, error)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunCompletePasswordReset consumes a reset token and installs newPassword
// for its owner. The new hash is derived before the token is touched, so a
// cancelled context or a busy hasher leaves the token usable. Under the
// user's lock the token is marked used before the record changes, so of two
// concurrent completions with the same token only one proceeds.
// Every session of the user is destroyed and any lockout is cleared.
func RunCompletePasswordReset(ctx context.Context, token, newPassword string, deps PasswordResetDeps) error {
	deps.fill()
	if !deps.ready() ||
		deps.CheckStrength == nil ||
		deps.ListActiveResetTokens == nil ||
		deps.MatchResetToken == nil ||
		deps.MarkResetTokenUsed == nil ||
		deps.HashPassword == nil ||
		deps.DestroyUserSessions == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(userID string, err error) error {
		deps.MetricInc(deps.Metrics.ResetFailure)
		deps.EmitAudit(ctx, deps.Events.ResetFailure, false, userID, "", err, nil)
		return err
	}

	if err := deps.CheckStrength(newPassword); err != nil {
		return err
	}
	if token == "" {
		return fail("", deps.Errors.InvalidResetToken)
	}

	active, err := deps.ListActiveResetTokens(ctx)
	if err != nil {
		return err
	}
	var match *store.ResetToken
	for _, rt := range active {
		if deps.MatchResetToken(token, rt.TokenHash) {
			match = rt
			break
		}
	}
	if match == nil {
		return fail("", deps.Errors.InvalidResetToken)
	}

	hash, err := deps.HashPassword(ctx, newPassword)
	if err != nil {
		return err
	}

	unlock := deps.LockUser(match.UserID)
	defer unlock()

	user, err := deps.GetUserByID(ctx, match.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(match.UserID, deps.Errors.UserNotFound)
		}
		return err
	}

	if err := deps.MarkResetTokenUsed(ctx, match.ID); err != nil {
		if errors.Is(err, store.ErrResetTokenUsed) || errors.Is(err, store.ErrNotFound) {
			return fail(match.UserID, deps.Errors.InvalidResetToken)
		}
		return err
	}

	user.PasswordHash = hash
	user.ClearLockout()
	user.UpdatedAt = deps.Now()
	if err := deps.UpdateUser(ctx, user); err != nil {
		return err
	}
	n, err := deps.DestroyUserSessions(ctx, user.ID)
	if err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.ResetSuccess)
	deps.EmitAudit(ctx, deps.Events.ResetSuccess, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{
			"sessions_revoked": strconv.Itoa(n),
		}
	})
	return nil
}
