package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
)

// ResetPassword describes the resetpassword operation and its observable behavior.
//
// The returned Message is ResetRequestMessage whether or not the email is registered. A token is
// issued only for an existing active account; its raw value is returned once in Token for
// out-of-band delivery and only its SHA-256 is persisted.
func (e *Engine) ResetPassword(ctx context.Context, email string) (*ResetRequestResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res := &ResetRequestResult{Message: ResetRequestMessage}
	e.metricInc(MetricPasswordResetRequest)

	user, err := e.users.GetUserByEmail(ctx, store.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.emitAudit(ctx, auditEventResetRequest, true, "", "", nil, func() map[string]string {
				return map[string]string{"issued": "false"}
			})
			return res, nil
		}
		return nil, internalError("password_reset", err)
	}
	if !user.IsActive {
		e.emitAudit(ctx, auditEventResetRequest, true, user.ID, "", nil, func() map[string]string {
			return map[string]string{"issued": "false"}
		})
		return res, nil
	}

	raw, err := password.GenerateResetToken()
	if err != nil {
		return nil, internalError("password_reset", err)
	}
	now := e.now()
	token := &store.ResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: password.HashResetToken(raw),
		ExpiresAt: now.Add(e.config.Password.ResetTokenTTL),
		CreatedAt: now,
	}
	if err := e.resetTokens.SaveResetToken(ctx, token); err != nil {
		return nil, internalError("password_reset", err)
	}

	e.emitAudit(ctx, auditEventResetRequest, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"issued": "true"}
	})
	res.Token = raw
	res.ExpiresAt = token.ExpiresAt
	return res, nil
}

// CompletePasswordReset describes the completepasswordreset operation and its observable behavior.
//
// A token redeems at most once; a used, expired or unknown token fails with ErrInvalidResetToken.
// On success the password is replaced, the lockout state cleared and every session destroyed.
// A newPassword that fails policy returns a ValidationError and leaves the token usable.
func (e *Engine) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	err := flows.RunCompletePasswordReset(ctx, token, newPassword, flows.PasswordResetDeps{
		Common:        e.common(),
		CheckStrength: e.strengthCheck("newPassword"),
		ListActiveResetTokens: func(ctx context.Context) ([]*store.ResetToken, error) {
			return e.resetTokens.ListActiveResetTokens(ctx, e.now())
		},
		MatchResetToken:     password.VerifyResetToken,
		MarkResetTokenUsed:  e.resetTokens.MarkResetTokenUsed,
		HashPassword:        e.hasher.Hash,
		DestroyUserSessions: e.sessions.DestroyUserSessions,
		Metrics: flows.PasswordResetMetrics{
			ResetSuccess: int(MetricPasswordResetConfirmSuccess),
			ResetFailure: int(MetricPasswordResetConfirmFailure),
		},
		Events: flows.PasswordResetEvents{
			ResetSuccess: auditEventResetConfirm,
			ResetFailure: auditEventResetFailure,
		},
		Errors: flows.PasswordResetErrors{
			EngineNotReady:    ErrEngineNotReady,
			InvalidResetToken: ErrInvalidResetToken,
			UserNotFound:      ErrUserNotFound,
		},
	})
	return internalError("password_reset", err)
}
