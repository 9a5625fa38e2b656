package authcore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Register describes the register operation and its observable behavior.
//
// Register fails with a ValidationError for a malformed email, an invalid role, or a password that
// fails policy or looks compromised, and with ErrEmailExists when the case-folded email is taken.
// An empty role registers a VIEWER.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*PublicUser, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	req.Email = strings.TrimSpace(req.Email)

	fail := func(err error) (*PublicUser, error) {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return nil, internalError("registration", err)
	}

	if err := e.validateRegister(req); err != nil {
		return fail(err)
	}

	role := RoleViewer
	if req.Role != "" {
		r, err := store.ParseRole(req.Role)
		if err != nil {
			return fail(newValidationError("role", "invalid role"))
		}
		role = r
	}

	email := store.NormalizeEmail(req.Email)
	if _, err := e.users.GetUserByEmail(ctx, email); err == nil {
		e.metricInc(MetricRegisterDuplicate)
		return fail(ErrEmailExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return fail(err)
	}

	hash, err := e.hasher.Hash(ctx, req.Password)
	if err != nil {
		return fail(err)
	}

	now := e.now()
	user := &store.UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			return fail(ErrEmailExists.withCause(err))
		}
		return fail(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{
			"role": role.String(),
		}
	})
	return publicUser(user), nil
}

func (e *Engine) validateRegister(req RegisterRequest) error {
	fields := make(map[string]string)

	if err := e.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}

	if _, bad := fields["password"]; !bad {
		if msg := e.passwordProblem(req.Password); msg != "" {
			fields["password"] = msg
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}

// passwordProblem returns the first policy violation of pw, or "".
func (e *Engine) passwordProblem(pw string) string {
	if res := e.policy.ValidateStrength(pw); !res.IsValid {
		return res.Errors[0]
	}
	if password.IsCompromised(pw) {
		return "Password appears in a list of compromised passwords"
	}
	return ""
}

func (e *Engine) strengthCheck(field string) func(string) error {
	return func(pw string) error {
		if msg := e.passwordProblem(pw); msg != "" {
			return newValidationError(field, msg)
		}
		return nil
	}
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// oldPassword must verify, newPassword must pass policy and must not match the current password.
// Every session of the user, including the caller's, is destroyed.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	err := flows.RunChangePassword(ctx, userID, oldPassword, newPassword, flows.ChangePasswordDeps{
		Common:              e.common(),
		CheckStrength:       e.strengthCheck("newPassword"),
		VerifyPassword:      e.hasher.Verify,
		HashPassword:        e.hasher.Hash,
		DestroyUserSessions: e.sessions.DestroyUserSessions,
		Metrics: flows.ChangePasswordMetrics{
			PasswordChanged: int(MetricPasswordChangeSuccess),
			PasswordFailure: int(MetricPasswordChangeFailure),
		},
		Events: flows.ChangePasswordEvents{
			PasswordChanged: auditEventPasswordChanged,
			PasswordFailure: auditEventPasswordFailure,
		},
		Errors: flows.ChangePasswordErrors{
			EngineNotReady:     ErrEngineNotReady,
			UserNotFound:       ErrUserNotFound,
			InvalidCredentials: ErrInvalidCredentials,
			PasswordReuse:      ErrPasswordReuse,
		},
	})
	return internalError("password_change", err)
}

// mutateUser applies mutate to the stored record of userID under the
// user's lock. With revoke set every session of the user is destroyed
// before the lock is released.
func (e *Engine) mutateUser(
	ctx context.Context,
	userID string,
	revoke bool,
	mutate func(*store.UserRecord, time.Time) error,
) (*store.UserRecord, int, error) {
	unlock := e.lockUser(userID)
	defer unlock()

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, ErrUserNotFound
		}
		return nil, 0, err
	}

	now := e.now()
	if err := mutate(user, now); err != nil {
		return nil, 0, err
	}
	user.UpdatedAt = now
	if err := e.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, ErrUserNotFound
		}
		return nil, 0, err
	}

	n := 0
	if revoke {
		n, err = e.sessions.DestroyUserSessions(ctx, userID)
		if err != nil {
			return nil, 0, err
		}
	}
	return user, n, nil
}

// UpdateUserRole sets the role of userID and destroys all of the user's
// sessions, so tokens minted for the old role stop refreshing.
func (e *Engine) UpdateUserRole(ctx context.Context, userID string, role Role) (*PublicUser, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !role.Valid() {
		return nil, newValidationError("role", "invalid role")
	}

	var previous Role
	user, n, err := e.mutateUser(ctx, userID, true, func(u *store.UserRecord, _ time.Time) error {
		previous = u.Role
		u.Role = role
		return nil
	})
	if err != nil {
		return nil, internalError("role_update", err)
	}

	e.metricInc(MetricRoleChanged)
	e.emitAudit(ctx, auditEventRoleChanged, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"from":             previous.String(),
			"to":               role.String(),
			"sessions_revoked": strconv.Itoa(n),
		}
	})
	return publicUser(user), nil
}

// DeactivateUser soft-deletes userID. Every session is destroyed and
// further logins fail with ErrAccountDeactivated.
func (e *Engine) DeactivateUser(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	_, n, err := e.mutateUser(ctx, userID, true, func(u *store.UserRecord, _ time.Time) error {
		u.IsActive = false
		return nil
	})
	if err != nil {
		return internalError("deactivation", err)
	}

	e.metricInc(MetricAccountDeactivated)
	e.emitAudit(ctx, auditEventAccountStatus, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"status":           "deactivated",
			"sessions_revoked": strconv.Itoa(n),
		}
	})
	return nil
}

// ActivateUser reverses DeactivateUser and clears any lockout.
func (e *Engine) ActivateUser(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	_, _, err := e.mutateUser(ctx, userID, false, func(u *store.UserRecord, _ time.Time) error {
		u.IsActive = true
		u.ClearLockout()
		return nil
	})
	if err != nil {
		return internalError("activation", err)
	}

	e.metricInc(MetricAccountActivated)
	e.emitAudit(ctx, auditEventAccountStatus, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"status": "activated",
		}
	})
	return nil
}

func (e *Engine) UnlockUser(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	_, _, err := e.mutateUser(ctx, userID, false, func(u *store.UserRecord, _ time.Time) error {
		u.ClearLockout()
		return nil
	})
	if err != nil {
		return internalError("unlock", err)
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountStatus, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"status": "unlocked",
		}
	})
	return nil
}

func (e *Engine) GetUser(ctx context.Context, userID string) (*PublicUser, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("get_user", err)
	}
	return publicUser(user), nil
}

func (e *Engine) GetUserByEmail(ctx context.Context, email string) (*PublicUser, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	user, err := e.users.GetUserByEmail(ctx, store.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("get_user", err)
	}
	return publicUser(user), nil
}
