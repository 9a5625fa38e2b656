package flows

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/authcore/store"
)

// ChangePasswordMetrics carries metric IDs needed by the change-password flow.
type ChangePasswordMetrics struct {
	PasswordChanged int
	PasswordFailure int
}

// ChangePasswordEvents carries audit event names used by the change-password flow.
type ChangePasswordEvents struct {
	PasswordChanged string
	PasswordFailure string
}

// ChangePasswordErrors carries host-level sentinel errors used by the
// change-password flow.
type ChangePasswordErrors struct {
	EngineNotReady     error
	UserNotFound       error
	InvalidCredentials error
	PasswordReuse      error
}

// ChangePasswordDeps captures change-password dependencies.
type ChangePasswordDeps struct {
	Common

	CheckStrength       func(string) error
	VerifyPassword      func(context.Context, string, string) (bool, error)
	HashPassword        func(context.Context, string) (string, error)
	DestroyUserSessions func(context.Context, string) (int, error)

	Metrics ChangePasswordMetrics
	Events  ChangePasswordEvents
	Errors  ChangePasswordErrors
}

// RunChangePassword replaces the password of userID after checking the
// current one. The new password must pass policy and differ from the
// current one. All sessions of the user are destroyed afterwards.
func RunChangePassword(ctx context.Context, userID, oldPassword, newPassword string, deps ChangePasswordDeps) error {
	deps.fill()
	if !deps.ready() ||
		deps.CheckStrength == nil ||
		deps.VerifyPassword == nil ||
		deps.HashPassword == nil ||
		deps.DestroyUserSessions == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(err error) error {
		deps.MetricInc(deps.Metrics.PasswordFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordFailure, false, userID, "", err, nil)
		return err
	}

	user, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(deps.Errors.UserNotFound)
		}
		return err
	}

	ok, err := deps.VerifyPassword(ctx, oldPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return fail(deps.Errors.InvalidCredentials)
	}

	if err := deps.CheckStrength(newPassword); err != nil {
		return err
	}

	same, err := deps.VerifyPassword(ctx, newPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if same {
		return fail(deps.Errors.PasswordReuse)
	}

	hash, err := deps.HashPassword(ctx, newPassword)
	if err != nil {
		return err
	}

	unlock := deps.LockUser(userID)
	fresh, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		unlock()
		return err
	}
	if fresh.PasswordHash != user.PasswordHash {
		unlock()
		return fail(deps.Errors.InvalidCredentials)
	}
	fresh.PasswordHash = hash
	fresh.UpdatedAt = deps.Now()
	if err := deps.UpdateUser(ctx, fresh); err != nil {
		unlock()
		return err
	}
	n, err := deps.DestroyUserSessions(ctx, userID)
	unlock()
	if err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.PasswordChanged)
	deps.EmitAudit(ctx, deps.Events.PasswordChanged, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"sessions_revoked": strconv.Itoa(n),
		}
	})
	return nil
}
