package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

// ListSessions returns the live sessions of userID, oldest first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	sessions, err := e.sessions.UserSessions(ctx, userID)
	if err != nil {
		return nil, internalError("list_sessions", err)
	}
	return sessionInfos(sessions), nil
}

// SuspiciousSessions returns the live sessions of userID when they span
// more distinct IPs than the configured threshold, and nothing otherwise.
// It only reports; no session is touched.
func (e *Engine) SuspiciousSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	sessions, err := e.sessions.GetSuspiciousSessions(ctx, userID)
	if err != nil {
		return nil, internalError("suspicious_sessions", err)
	}
	return sessionInfos(sessions), nil
}

// ValidateSession describes the validatesession operation and its observable behavior.
//
// A live session is returned with a fresh LastActivity. An expired one is destroyed first and then
// reported as ErrSessionExpired. The owner must still exist and be active.
func (e *Engine) ValidateSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	sess, err := e.sessions.ValidateSession(ctx, sessionID)
	if err != nil {
		return nil, internalError("session_validation", sessionError(err))
	}
	if err := e.checkOwner(ctx, sess); err != nil {
		return nil, internalError("session_validation", err)
	}
	info := sessionInfos([]*session.Session{sess})[0]
	return &info, nil
}

// ExtendSession pushes the expiry of a live session to now plus the
// session timeout. It never shortens a session.
func (e *Engine) ExtendSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	sess, err := e.sessions.ExtendSession(ctx, sessionID, e.config.Session.Timeout)
	if err != nil {
		return nil, internalError("session_extend", sessionError(err))
	}
	info := sessionInfos([]*session.Session{sess})[0]
	return &info, nil
}

func (e *Engine) checkOwner(ctx context.Context, sess *session.Session) error {
	user, err := e.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !user.IsActive {
		return ErrAccountDeactivated
	}
	return nil
}
