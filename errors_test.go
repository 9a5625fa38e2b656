package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/MrEthical07/authcore/ratelimit"
)

func TestAuthErrorMatchesByCode(t *testing.T) {
	cause := errors.New("signature mismatch")
	err := ErrInvalidSignature.withCause(cause)

	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatal("expected match on code")
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Fatal("different codes must not match")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause reachable")
	}
	if ErrInvalidSignature.Unwrap() != nil {
		t.Fatal("withCause must not mutate the sentinel")
	}
}

func TestInternalErrorPassesExpectedOutcomes(t *testing.T) {
	if internalError("login", nil) != nil {
		t.Fatal("nil must stay nil")
	}
	if err := internalError("login", ErrAccountLocked); err != ErrAccountLocked {
		t.Fatalf("expected sentinel unchanged, got %v", err)
	}
	verr := newValidationError("email", "is required")
	if err := internalError("registration", verr); err != error(verr) {
		t.Fatalf("expected validation error unchanged, got %v", err)
	}

	err := internalError("password_reset", errors.New("redis: connection pool timeout"))
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Code != "PASSWORD_RESET_FAILED" || authErr.Message != "password reset failed" {
		t.Fatalf("unexpected wrap %+v", authErr)
	}
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"password": "too short",
		"email":    "is required",
	}}
	want := "validation failed: email: is required; password: too short"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrTokenExpired, http.StatusUnauthorized},
		{ErrAccountDeactivated, http.StatusForbidden},
		{ErrUserNotFound, http.StatusNotFound},
		{ErrEmailExists, http.StatusConflict},
		{ErrAccountLocked, http.StatusLocked},
		{fmt.Errorf("login: %w", ratelimit.ErrRateLimited), http.StatusTooManyRequests},
		{newValidationError("email", "bad"), http.StatusBadRequest},
		{internalError("login", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
