package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

const (
	auditEventRegister           = "user_registered"
	auditEventRegisterFailure    = "registration_failure"
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventAccountLocked      = "account_locked"
	auditEventSuspiciousSessions = "suspicious_sessions"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshFailure     = "refresh_failure"
	auditEventRefreshReuse       = "refresh_reuse_detected"
	auditEventLogoutSession      = "logout_session"
	auditEventLogoutAll          = "logout_all"
	auditEventSessionEvicted     = "session_evicted"
	auditEventPasswordChanged    = "password_changed"
	auditEventPasswordFailure    = "password_change_failure"
	auditEventResetRequest       = "password_reset_request"
	auditEventResetConfirm       = "password_reset_confirm"
	auditEventResetFailure       = "password_reset_failure"
	auditEventRoleChanged        = "role_changed"
	auditEventAccountStatus      = "account_status_change"
)

// AuditErrorCode is the coarse error class recorded on failed events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDeactivated AuditErrorCode = "account_deactivated"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrInvalidResetToken  AuditErrorCode = "invalid_reset_token"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var validationErr *ValidationError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDeactivated):
		return auditErrAccountDeactivated
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, session.ErrRefreshTokenReused):
		return auditErrRefreshReuse
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrInvalidTokenType),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, jwt.ErrMalformedToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrSessionNotFound):
		return auditErrSessionInvalid
	case errors.Is(err, ErrInvalidResetToken):
		return auditErrInvalidResetToken
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrEmailExists):
		return auditErrDuplicate
	case errors.As(err, &validationErr):
		return auditErrPasswordPolicy
	default:
		return auditErrInternal
	}
}
