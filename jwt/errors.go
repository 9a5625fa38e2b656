package jwt

import "errors"

var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenFromFuture  = errors.New("token issued in the future")
	ErrInvalidTokenType = errors.New("invalid token type")
)
