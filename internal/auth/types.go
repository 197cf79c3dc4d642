package auth

import (
	"errors"
	"strings"
	"time"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a regular account: owns todos, manages its own sessions.
	RoleUser Role = "user"

	// RoleAdmin can list users, change roles, inspect any user's todos,
	// soft-delete accounts, and read the audit trail.
	RoleAdmin Role = "admin"
)

// IsValidRole returns true if the role is one of the closed set.
func IsValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// User represents an account record.
//
// DeletedAt is nil for live accounts. Soft-deleted accounts are excluded
// from every lookup the login and authorisation paths use, and are never
// hard-deleted or restored.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never serialised
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Identity is the authenticated principal resolved from a verified access
// token and attached to the request context. The role is a snapshot taken
// at mint time.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// MinPasswordLength is the minimum accepted password length at registration.
const MinPasswordLength = 8

// NormalizeEmail canonicalises an email address: trimmed, lower-cased.
// All storage and lookups operate on the normalised form.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// IsValidEmail performs the minimal shape check applied at registration:
// an "@" with at least one character before it, and a "." later in the
// domain part that is neither adjacent to the "@" nor the final character.
func IsValidEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at < 1 || at+2 >= len(email) {
		return false
	}
	dot := strings.IndexByte(email[at+2:], '.')
	if dot < 0 {
		return false
	}
	return at+2+dot < len(email)-1
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrTokenInvalid       = errors.New("invalid token")
)
