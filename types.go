package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

// Role is the ordered privilege level of a user.
type Role = store.Role

const (
	RoleViewer       = store.RoleViewer
	RoleAdjuster     = store.RoleAdjuster
	RoleInvestigator = store.RoleInvestigator
	RoleAdmin        = store.RoleAdmin
)

// PublicUser is the projection of a user record that may leave the
// engine. It never carries the password hash.
type PublicUser struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Role                Role       `json:"role"`
	IsActive            bool       `json:"isActive"`
	FailedLoginAttempts uint32     `json:"failedLoginAttempts"`
	LockedUntil         *time.Time `json:"lockedUntil,omitempty"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func publicUser(u *store.UserRecord) *PublicUser {
	if u == nil {
		return nil
	}
	c := u.Clone()
	return &PublicUser{
		ID:                  c.ID,
		Email:               c.Email,
		Role:                c.Role,
		IsActive:            c.IsActive,
		FailedLoginAttempts: c.FailedLoginAttempts,
		LockedUntil:         c.LockedUntil,
		LastLogin:           c.LastLogin,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

// RegisterRequest is the input of Engine.Register. An empty Role means
// VIEWER.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
	Role     string `json:"role" validate:"omitempty,oneof=VIEWER ADJUSTER INVESTIGATOR ADMIN viewer adjuster investigator admin"`
}

// TokenPair is an access token plus the refresh token bound to a session.
type TokenPair struct {
	AccessToken      string        `json:"accessToken"`
	RefreshToken     string        `json:"refreshToken"`
	AccessExpiresIn  time.Duration `json:"accessExpiresIn"`
	RefreshExpiresIn time.Duration `json:"refreshExpiresIn"`
	SessionID        string        `json:"sessionId"`
}

// LoginResult is returned by a successful Engine.Login.
type LoginResult struct {
	User   *PublicUser `json:"user"`
	Tokens TokenPair   `json:"tokens"`
}

// ResetRequestMessage is the answer to every password-reset request.
const ResetRequestMessage = "If the email is registered, a password reset link has been sent."

// ResetRequestResult is returned by Engine.ResetPassword. Message is the
// same on every path. Token is the raw secret for out-of-band delivery and
// is empty when no token was issued; transports must not echo it.
type ResetRequestResult struct {
	Message   string    `json:"message"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// SessionInfo describes a live session without its refresh-token hash.
type SessionInfo struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	UserAgent    string    `json:"userAgent,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastActivity time.Time `json:"lastActivity"`
}

func sessionInfos(sessions []*session.Session) []SessionInfo {
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			ID:           s.ID,
			UserID:       s.UserID,
			UserAgent:    s.UserAgent,
			IPAddress:    s.IPAddress,
			CreatedAt:    s.CreatedAt,
			ExpiresAt:    s.ExpiresAt,
			LastActivity: s.LastActivity,
		})
	}
	return out
}
