package auth

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// usernamePattern: alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is the authorisation tier carried in the claims table and the token.
type Role string

const (
	// RoleUser may operate the gate.
	RoleUser Role = "user"

	// RoleAdmin may operate the gate, correct its logical state, and manage users.
	RoleAdmin Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an account in the credential store.
type User struct {
	ID           int64     `json:"userid"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the verified subject of a token.
type Identity struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidUsername    = errors.New("invalid username format")
	ErrInvalidRole        = errors.New("invalid role")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrForbidden          = errors.New("insufficient permissions")
)

// ErrTokenMissing is an ErrTokenInvalid for requests that carried no token at all.
var ErrTokenMissing = fmt.Errorf("%w: no token supplied", ErrTokenInvalid)

// ValidateNewUser checks the fields an admin supplies when registering an account.
func ValidateNewUser(username string, role Role) error {
	if !IsValidUsername(username) {
		return ErrInvalidUsername
	}
	if !role.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return nil
}
