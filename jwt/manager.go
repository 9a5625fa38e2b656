package jwt

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	minSecretLength     = 32
	defaultMaxFutureIAT = 60 * time.Second
)

// Config defines the secrets and lifetimes used to mint and verify tokens.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// MaxFutureIAT bounds how far ahead of the local clock an iat may be.
	// Zero means 60s.
	MaxFutureIAT time.Duration
	Now          func() time.Time
}

// Manager mints and verifies access and refresh tokens.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when a secret is shorter than 32 bytes or a lifetime is
// not positive. NewManager does not mutate shared global state; in particular the signing
// method is never registered with golang-jwt.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < minSecretLength {
		return nil, fmt.Errorf("access secret must be at least %d bytes", minSecretLength)
	}
	if len(cfg.RefreshSecret) < minSecretLength {
		return nil, fmt.Errorf("refresh secret must be at least %d bytes", minSecretLength)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// GenerateAccessToken mints a short-lived access token for p.
func (m *Manager) GenerateAccessToken(p Payload) (string, error) {
	return m.generate(p, TypeAccess)
}

// GenerateRefreshToken mints a refresh token for p, signed with the refresh
// secret.
func (m *Manager) GenerateRefreshToken(p Payload) (string, error) {
	return m.generate(p, TypeRefresh)
}

func (m *Manager) generate(p Payload, typ TokenType) (string, error) {
	if p.UserID == "" {
		return "", errors.New("payload user id is required")
	}

	secret, ttl := m.paramsFor(typ)
	now := m.config.Now()
	claims := &Claims{
		UserID:    p.UserID,
		Email:     p.Email,
		Role:      p.Role,
		Type:      typ,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		ID:        uuid.NewString(),
	}

	return jwt.NewWithClaims(signingMethod, claims).SignedString(secret)
}

// VerifyToken describes the verifytoken operation and its observable behavior.
//
// The signature is checked first, against the secret of the token class the payload
// claims; a forged type claim therefore fails the signature check. Only then are
// expiry, the future-iat guard and the expected class checked. Each failure maps to
// its own sentinel: ErrMalformedToken, ErrInvalidSignature, ErrTokenExpired,
// ErrTokenFromFuture or ErrInvalidTokenType.
func (m *Manager) VerifyToken(tokenStr string, isRefresh bool) (*Claims, error) {
	token, parts, claims, err := parseUnverified(tokenStr)
	if err != nil {
		return nil, err
	}
	if alg, _ := token.Header["alg"].(string); alg != signingMethod.Alg() {
		return nil, ErrInvalidSignature
	}

	expectedType := TypeAccess
	if isRefresh {
		expectedType = TypeRefresh
	}
	secretType := claims.Type
	if secretType != TypeAccess && secretType != TypeRefresh {
		secretType = expectedType
	}
	secret, _ := m.paramsFor(secretType)

	expected, err := encodedSignature(parts[0]+"."+parts[1], secret)
	if err != nil {
		return nil, err
	}
	if len(expected) != len(parts[2]) ||
		subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) != 1 {
		return nil, ErrInvalidSignature
	}

	now := m.config.Now()
	if claims.Expiration().Before(now) {
		return nil, ErrTokenExpired
	}
	if time.Unix(claims.IssuedAt, 0).After(now.Add(m.config.MaxFutureIAT)) {
		return nil, ErrTokenFromFuture
	}
	if claims.Type != expectedType {
		return nil, ErrInvalidTokenType
	}
	if claims.UserID == "" {
		return nil, ErrMalformedToken
	}

	return claims, nil
}

// IsTokenExpired reports whether the unverified exp claim is in the past.
// Undecodable tokens count as expired.
func (m *Manager) IsTokenExpired(tokenStr string) bool {
	exp, err := GetTokenExpiration(tokenStr)
	if err != nil {
		return true
	}
	return exp.Before(m.config.Now())
}

// RevokeToken is a no-op: there is no revocation store yet, so a token
// stays valid until it expires. Session destruction is the effective
// revocation path for refresh tokens.
func (m *Manager) RevokeToken(string) error { return nil }

// IsTokenRevoked always reports false; see RevokeToken.
func (m *Manager) IsTokenRevoked(string) bool { return false }

// DecodeToken returns the claims without verifying the signature or any
// time bound.
func DecodeToken(tokenStr string) (*Claims, error) {
	_, _, claims, err := parseUnverified(tokenStr)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// GetTokenExpiration returns the unverified exp claim.
func GetTokenExpiration(tokenStr string) (time.Time, error) {
	claims, err := DecodeToken(tokenStr)
	if err != nil {
		return time.Time{}, err
	}
	return claims.Expiration(), nil
}

func (m *Manager) paramsFor(typ TokenType) ([]byte, time.Duration) {
	if typ == TypeRefresh {
		return m.config.RefreshSecret, m.config.RefreshTTL
	}
	return m.config.AccessSecret, m.config.AccessTTL
}

func parseUnverified(tokenStr string) (*jwt.Token, []string, *Claims, error) {
	claims := &Claims{}
	token, parts, err := jwt.NewParser().ParseUnverified(tokenStr, claims)
	if err != nil || len(parts) != 3 || parts[2] == "" {
		return nil, nil, nil, ErrMalformedToken
	}
	return token, parts, claims, nil
}
