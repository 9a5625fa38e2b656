package session

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches the lookup.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned after an expired session was destroyed.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshTokenReused is returned when a rotation presents a token
	// that is no longer bound to the session.
	ErrRefreshTokenReused = errors.New("refresh token no longer bound to session")
	// ErrRedisUnavailable wraps backend failures from RedisStore.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidSession is returned for blobs that do not decode.
	ErrInvalidSession = errors.New("invalid session encoding")
)
