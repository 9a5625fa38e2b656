package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Payload is the identity a token is minted for.
type Payload struct {
	UserID string
	Email  string
	Role   string
}

// Claims is the verified token body. Field order fixes the JSON key order
// on the wire. ID is random per token, so two tokens minted for the same
// identity within one second still differ.
type Claims struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Type      TokenType `json:"type"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
	ID        string    `json:"jti"`
}

func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

func (c *Claims) GetIssuer() (string, error) { return "", nil }

func (c *Claims) GetSubject() (string, error) { return c.UserID, nil }

func (c *Claims) GetAudience() (jwt.ClaimStrings, error) { return nil, nil }

// Expiration returns the exp claim as a time.
func (c *Claims) Expiration() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}
