package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parley-im/parley-core/internal/infrastructure/logging"
)

const (
	// refreshSecretBytes is the entropy of a refresh token secret.
	refreshSecretBytes = 64

	// defaultRefreshTTL is the inactivity window before a refresh token
	// expires. Each successful rotation pushes it out again.
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// TokenPair is the credential set returned by login and rotation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Sessions manages the refresh token lifecycle: issuance at login, in-place
// rotation with breach detection, bulk invalidation, and expiry sweeps.
type Sessions struct {
	users      UserRepository
	tokens     TokenRepository
	hasher     *Hasher
	codec      *TokenCodec
	refreshTTL time.Duration
	logger     *logging.Logger
	onBreach   func(ctx context.Context, userID, tokenID string)
}

// NewSessions creates a session manager. A non-positive refreshTTL falls
// back to the 30-day default.
func NewSessions(users UserRepository, tokens TokenRepository, hasher *Hasher, codec *TokenCodec, refreshTTL time.Duration, logger *logging.Logger) *Sessions {
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &Sessions{
		users:      users,
		tokens:     tokens,
		hasher:     hasher,
		codec:      codec,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// SetOnBreach registers a callback invoked whenever the breach response
// fires. Call before the manager is shared between goroutines.
func (s *Sessions) SetOnBreach(callback func(ctx context.Context, userID, tokenID string)) {
	s.onBreach = callback
}

// Login verifies a user's password and issues a fresh token pair.
// Unknown usernames and wrong passwords both collapse into
// ErrInvalidCredentials so the response cannot be used to enumerate accounts.
func (s *Sessions) Login(ctx context.Context, username, password string) (*TokenPair, *User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if s.hasher.Verify(user.PasswordHash, password) != VerifyMatch {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Issue creates a new refresh token row for a user and returns the external
// form "{id}.{secret}". The secret never touches the database, only its
// argon2id digest is stored. No token string is returned unless the insert
// committed.
func (s *Sessions) Issue(ctx context.Context, userID string) (string, error) {
	secret, err := newRefreshSecret()
	if err != nil {
		return "", err
	}

	digest, err := s.hasher.Hash(secret)
	if err != nil {
		return "", fmt.Errorf("hashing refresh secret: %w", err)
	}

	token := &RefreshToken{
		UserID:    userID,
		TokenHash: digest,
		ExpiresAt: time.Now().Add(s.refreshTTL),
		IsValid:   true,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return token.ID + "." + secret, nil
}

// Rotate consumes a refresh token and returns a fresh pair.
//
// The row id persists across rotations; only the digest and expiry change.
// A secret mismatch against a live, unexpired row is treated as evidence of
// theft (most likely replay of an already-rotated token) and triggers the
// breach response: every refresh token the user holds is invalidated before
// the rejection is returned.
func (s *Sessions) Rotate(ctx context.Context, external string) (*TokenPair, error) {
	id, secret, err := parseExternalToken(external)
	if err != nil {
		return nil, err
	}

	row, err := s.tokens.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRefreshNotFound) {
			return nil, ErrRefreshNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if time.Now().After(row.ExpiresAt) {
		// Left in place for the sweep.
		return nil, ErrRefreshExpired
	}
	if !row.IsValid {
		return nil, ErrRefreshInvalid
	}

	if s.hasher.Verify(row.TokenHash, secret) != VerifyMatch {
		// Someone holds a real token id with the wrong secret. Revoke the
		// whole session family and force re-authentication.
		if err := s.tokens.InvalidateAllForUser(ctx, row.UserID); err != nil {
			return nil, fmt.Errorf("%w: breach invalidation: %w", ErrStorage, err)
		}
		s.logger.Warn("refresh token breach response triggered",
			"user_id", row.UserID,
			"token_id", row.ID,
		)
		if s.onBreach != nil {
			s.onBreach(ctx, row.UserID, row.ID)
		}
		return nil, ErrRefreshInvalid
	}

	newSecret, err := newRefreshSecret()
	if err != nil {
		return nil, err
	}
	newDigest, err := s.hasher.Hash(newSecret)
	if err != nil {
		return nil, fmt.Errorf("hashing refresh secret: %w", err)
	}

	err = s.tokens.Rotate(ctx, row.ID, row.TokenHash, newDigest, time.Now().Add(s.refreshTTL))
	if err != nil {
		// A concurrent rotation winning the race is a storage-class
		// failure for this caller: its new secret was never persisted.
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	access, err := s.issueAccess(ctx, row.UserID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: row.ID + "." + newSecret,
	}, nil
}

// Logout invalidates every refresh token the user holds.
func (s *Sessions) Logout(ctx context.Context, userID string) error {
	if err := s.tokens.InvalidateAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// HashPassword produces the argon2id digest stored for a new account.
// Exposed so registration shares the session manager's hasher parameters.
func (s *Sessions) HashPassword(password string) (string, error) {
	return s.hasher.Hash(password)
}

// CleanupExpired removes expired refresh token rows and returns the count.
func (s *Sessions) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return count, nil
}

// Role derives the user's current role from the admins table.
func (s *Sessions) Role(ctx context.Context, userID string) (Role, error) {
	isAdmin, err := s.users.IsAdmin(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if isAdmin {
		return RoleAdmin, nil
	}
	return RoleDefault, nil
}

// issuePair mints an access token plus a new refresh token for a user.
func (s *Sessions) issuePair(ctx context.Context, userID string) (*TokenPair, error) {
	access, err := s.issueAccess(ctx, userID)
	if err != nil {
		return nil, err
	}

	refresh, err := s.Issue(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// issueAccess derives the current role and signs an access token. Role is
// re-read from the store on every issuance, never carried over from an old
// token.
func (s *Sessions) issueAccess(ctx context.Context, userID string) (string, error) {
	role, err := s.Role(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.codec.Issue(userID, role)
}

// newRefreshSecret generates a high-entropy url-safe secret string.
func newRefreshSecret() (string, error) {
	b := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// parseExternalToken splits "{id}.{secret}" and validates the id shape.
// Malformed tokens are rejected before any store access.
func parseExternalToken(external string) (id, secret string, err error) {
	id, secret, found := strings.Cut(external, ".")
	if !found || id == "" || secret == "" {
		return "", "", ErrRefreshMalformed
	}
	if _, err := uuid.Parse(id); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return "", "", ErrRefreshMalformed
	}
	return id, secret, nil
}
