package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/MrEthical07/authcore/ratelimit"
)

// Machine-readable AuthError codes.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeAccountDeactivated = "ACCOUNT_DEACTIVATED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidTokenType   = "INVALID_TOKEN_TYPE"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeInvalidResetToken  = "INVALID_RESET_TOKEN"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodePasswordReuse      = "PASSWORD_REUSE"
	CodeEngineNotReady     = "ENGINE_NOT_READY"
)

// AuthError is an expected authentication outcome carrying a code and a
// suggested HTTP status. Two AuthErrors match under errors.Is when their
// codes are equal.
type AuthError struct {
	Code       string
	Message    string
	StatusCode int
	err        error
}

func (e *AuthError) Error() string {
	return e.Message
}

// Unwrap returns the internal cause, if any. It is never part of Message.
func (e *AuthError) Unwrap() error {
	return e.err
}

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

func (e *AuthError) withCause(err error) *AuthError {
	cp := *e
	cp.err = err
	return &cp
}

var (
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike.
	ErrInvalidCredentials = &AuthError{Code: CodeInvalidCredentials, Message: "invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrAccountLocked      = &AuthError{Code: CodeAccountLocked, Message: "account is temporarily locked", StatusCode: http.StatusLocked}
	ErrAccountDeactivated = &AuthError{Code: CodeAccountDeactivated, Message: "account is deactivated", StatusCode: http.StatusForbidden}
	ErrUserNotFound       = &AuthError{Code: CodeUserNotFound, Message: "user not found", StatusCode: http.StatusNotFound}
	ErrInvalidToken       = &AuthError{Code: CodeInvalidToken, Message: "invalid token", StatusCode: http.StatusUnauthorized}
	ErrTokenExpired       = &AuthError{Code: CodeTokenExpired, Message: "token expired", StatusCode: http.StatusUnauthorized}
	ErrInvalidTokenType   = &AuthError{Code: CodeInvalidTokenType, Message: "invalid token type", StatusCode: http.StatusUnauthorized}
	ErrInvalidSignature   = &AuthError{Code: CodeInvalidSignature, Message: "invalid token signature", StatusCode: http.StatusUnauthorized}
	ErrSessionExpired     = &AuthError{Code: CodeSessionExpired, Message: "session expired", StatusCode: http.StatusUnauthorized}
	ErrSessionNotFound    = &AuthError{Code: CodeSessionNotFound, Message: "session not found", StatusCode: http.StatusUnauthorized}
	ErrInvalidResetToken  = &AuthError{Code: CodeInvalidResetToken, Message: "invalid or expired reset token", StatusCode: http.StatusBadRequest}
	ErrEmailExists        = &AuthError{Code: CodeEmailExists, Message: "email already registered", StatusCode: http.StatusConflict}
	ErrPasswordReuse      = &AuthError{Code: CodePasswordReuse, Message: "new password must be different from current password", StatusCode: http.StatusBadRequest}
	ErrEngineNotReady     = &AuthError{Code: CodeEngineNotReady, Message: "engine not initialized", StatusCode: http.StatusInternalServerError}
)

// internalError wraps an unexpected failure of op into a generic
// <OP>_FAILED AuthError. Expected outcomes pass through unchanged.
func internalError(op string, err error) error {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return err
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return err
	}
	return &AuthError{
		Code:       strings.ToUpper(op) + "_FAILED",
		Message:    strings.ReplaceAll(op, "_", " ") + " failed",
		StatusCode: http.StatusInternalServerError,
		err:        err,
	}
}

// ValidationError reports malformed client input, one message per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// HTTPStatus maps err to the status code a transport should answer with.
// Unknown errors map to 500 and nil to 200.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.StatusCode
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ratelimit.ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
