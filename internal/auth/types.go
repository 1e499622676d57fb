package auth

import (
	"errors"
	"net/mail"
	"slices"
	"strings"
	"time"
)

// maxEmailLength is the RFC 5321 path limit.
const maxEmailLength = 254

// NormalizeEmail trims and lower-cases an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail reports whether email is a bare address (no display name).
func IsValidEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can watch the dashboard but never operates devices.
	RoleViewer Role = "viewer"

	// RoleUser is a household member who operates lights and fans.
	RoleUser Role = "user"

	// RoleAdmin operates devices and manages accounts.
	RoleAdmin Role = "admin"

	// RoleOwner is the house owner. Everything admin can do plus managing
	// other owners.
	RoleOwner Role = "owner"
)

// ValidRoles lists every assignable role.
var ValidRoles = []Role{RoleViewer, RoleUser, RoleAdmin, RoleOwner}

// IsValidRole returns true if r is an assignable role.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// User is an account known to the identity provider.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Name is the label shown in view headers: the display name, or the email
// when no display name is set.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// RefreshToken is a stored refresh token. Tokens issued from one sign-in
// share a FamilyID, which doubles as the session ID carried in access
// tokens.
type RefreshToken struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	FamilyID   string    `json:"family_id"`
	TokenHash  string    `json:"-"` // never serialised
	DeviceInfo string    `json:"device_info,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidRole        = errors.New("invalid role")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenReuse         = errors.New("refresh token reuse detected")
	ErrForbidden          = errors.New("insufficient permissions")
)
