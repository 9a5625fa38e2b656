package store

import (
	"fmt"
	"strings"
	"time"
)

// Role is an ordered privilege level. Higher values include the privileges
// of lower ones.
type Role uint8

const (
	RoleViewer Role = iota + 1
	RoleAdjuster
	RoleInvestigator
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleViewer:       "VIEWER",
	RoleAdjuster:     "ADJUSTER",
	RoleInvestigator: "INVESTIGATOR",
	RoleAdmin:        "ADMIN",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r grants at least the privileges of other.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r >= other
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for role, candidate := range roleNames {
		if candidate == name {
			return role, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// UserRecord is the persisted account state. PasswordHash never leaves the
// process through JSON.
type UserRecord struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Role                Role       `json:"role"`
	FailedLoginAttempts uint32     `json:"failedLoginAttempts"`
	LockedUntil         *time.Time `json:"lockedUntil,omitempty"`
	IsActive            bool       `json:"isActive"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of u.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	cp := *u
	cp.LockedUntil = cloneTime(u.LockedUntil)
	cp.LastLogin = cloneTime(u.LastLogin)
	return &cp
}

// IsLocked reports whether the lockout is still in force at now. A lock
// expires once now reaches LockedUntil.
func (u *UserRecord) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// ClearLockout resets the failure counter and removes any lock.
func (u *UserRecord) ClearLockout() {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
}

// ResetToken is a persisted password-reset grant. Only the SHA-256 of the
// raw secret is stored.
type ResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Clone returns a copy of t.
func (t *ResetToken) Clone() *ResetToken {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Usable reports whether t can still be redeemed at now.
func (t *ResetToken) Usable(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// NormalizeEmail case-folds and trims an email address for storage and
// lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
