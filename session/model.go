package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"time"
)

// Metadata is optional client context recorded on a session.
type Metadata struct {
	UserAgent string
	IPAddress string
}

// Session is a server-side login record bound to one refresh token.
type Session struct {
	ID           string
	UserID       string
	RefreshHash  [32]byte
	UserAgent    string
	IPAddress    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
}

// HashRefreshToken returns the digest under which a refresh token is bound.
func HashRefreshToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// Live reports whether s is still valid at now.
func (s *Session) Live(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// BoundTo reports whether token is the refresh token currently bound to s.
func (s *Session) BoundTo(token string) bool {
	sum := HashRefreshToken(token)
	return subtle.ConstantTimeCompare(sum[:], s.RefreshHash[:]) == 1
}

// Clone returns a copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
