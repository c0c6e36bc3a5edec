package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleDefault is an ordinary account. Topic access is governed entirely
	// by relationship state (memberships, friendships).
	RoleDefault Role = "default"

	// RoleAdmin has elevated API access: user management, group moderation.
	// Derived from the admins table at token issuance, never self-asserted.
	RoleAdmin Role = "admin"
)

// User represents an account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Avatar       string    `json:"avatar,omitempty"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"created_at"`
}

// RefreshToken represents a stored refresh token row.
//
// The external form handed to clients is "{id}.{secret}"; only the argon2id
// digest of the secret is persisted. The row id survives rotation; each
// successful use overwrites TokenHash and ExpiresAt in place.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"` // never serialised
	ExpiresAt time.Time `json:"expires_at"`
	IsValid   bool      `json:"is_valid"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already exists")
	ErrTokenInvalid       = errors.New("invalid token")

	// ErrRefreshMalformed is returned when a presented refresh token does
	// not parse as "{uuid}.{secret}". No store access happens in this case.
	ErrRefreshMalformed = errors.New("malformed refresh token")

	// ErrRefreshNotFound is returned when the token id resolves to no row.
	ErrRefreshNotFound = errors.New("refresh token not found")

	// ErrRefreshExpired is returned for rows past their expiry; the row is
	// left in place for the cleanup sweep.
	ErrRefreshExpired = errors.New("refresh token expired")

	// ErrRefreshInvalid is returned for invalidated rows and for secret
	// mismatches. The mismatch path additionally triggers the breach
	// response before returning this error.
	ErrRefreshInvalid = errors.New("refresh token invalid")

	// ErrStorage indicates a persistence failure. Callers must not hand
	// out token strings when this is returned, since the backing write did not
	// durably commit.
	ErrStorage = errors.New("storage error")
)
