package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRotationConflict is returned when a conditional rotation matches no
// row: the digest changed between read and write, meaning a concurrent
// rotation won the race. Without this guard two concurrent rotations of the
// same row could both appear to succeed while only one secret survives.
var ErrRotationConflict = errors.New("refresh token rotation conflict")

// TokenRepository defines the interface for refresh token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByID(ctx context.Context, id string) (*RefreshToken, error)

	// Rotate overwrites the row's digest and expiry in place, conditional
	// on the previous digest still being current. Returns
	// ErrRotationConflict when no row matched.
	Rotate(ctx context.Context, id, previousHash, newHash string, expiresAt time.Time) error

	// InvalidateAllForUser clears the validity flag on every token the
	// user holds, in a single statement. This is the breach response.
	InvalidateAllForUser(ctx context.Context, userID string) error

	ListActiveByUser(ctx context.Context, userID string) ([]RefreshToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// Create inserts a new refresh token row. The ID is generated if empty.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, is_valid)
		 VALUES (?, ?, ?, ?, ?)`,
		token.ID, token.UserID, token.TokenHash,
		token.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(token.IsValid),
	)
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}

	return nil
}

// GetByID retrieves a refresh token row by its ID.
func (r *SQLiteTokenRepository) GetByID(ctx context.Context, id string) (*RefreshToken, error) {
	var t RefreshToken
	var isValid int
	var expiresAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, is_valid
		 FROM refresh_tokens WHERE id = ?`, id,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &isValid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshNotFound
		}
		return nil, fmt.Errorf("getting refresh token: %w", err)
	}

	t.IsValid = isValid != 0
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled

	return &t, nil
}

// Rotate overwrites the digest and expiry of a live row, keeping the row id.
// The WHERE clause matches the previous digest so a concurrent rotation that
// already consumed the secret makes this one fail rather than silently
// clobbering the surviving digest.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, id, previousHash, newHash string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET token_hash = ?, expires_at = ?
		 WHERE id = ? AND token_hash = ? AND is_valid = 1`,
		newHash, expiresAt.UTC().Format(time.RFC3339), id, previousHash,
	)
	if err != nil {
		return fmt.Errorf("rotating refresh token: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRotationConflict
	}
	return nil
}

// InvalidateAllForUser clears the validity flag on all of a user's tokens.
// A single UPDATE keeps the breach response atomic with respect to
// concurrent rotations of sibling tokens.
func (r *SQLiteTokenRepository) InvalidateAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_valid = 0 WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("invalidating tokens for user: %w", err)
	}
	return nil
}

// ListActiveByUser returns all valid, unexpired tokens for a user.
func (r *SQLiteTokenRepository) ListActiveByUser(ctx context.Context, userID string) ([]RefreshToken, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, is_valid
		 FROM refresh_tokens
		 WHERE user_id = ? AND is_valid = 1 AND expires_at > ?`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []RefreshToken
	for rows.Next() {
		var t RefreshToken
		var isValid int
		var expiresAt string

		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &isValid); err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}

		t.IsValid = isValid != 0
		t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled

		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tokens: %w", err)
	}

	if tokens == nil {
		tokens = []RefreshToken{}
	}
	return tokens, nil
}

// DeleteExpired removes rows past their expiry, freeing storage.
// Idempotent and safe to interleave with issuance and rotation: a row
// created after the sweep begins has a future expiry and is never a target.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}
