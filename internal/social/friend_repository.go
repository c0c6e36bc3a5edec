package social

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FriendRepository defines the interface for friendship persistence.
type FriendRepository interface {
	// Request creates a pending friendship row in request direction.
	Request(ctx context.Context, requesterID, addresseeID string) (*Friendship, error)

	// GetBetween finds the single row for a pair, checking both orderings.
	GetBetween(ctx context.Context, userA, userB string) (*Friendship, error)

	// HasApproved reports whether an approved friendship exists between the
	// two users, in either direction. This is the DM publish check.
	HasApproved(ctx context.Context, userA, userB string) (bool, error)

	// UpdateStatus sets the status on the pair's row, whichever direction
	// it was stored in.
	UpdateStatus(ctx context.Context, userA, userB string, status FriendStatus) error

	ListForUser(ctx context.Context, userID string) ([]Friendship, error)
	Delete(ctx context.Context, userA, userB string) error
}

// SQLiteFriendRepository implements FriendRepository using SQLite.
type SQLiteFriendRepository struct {
	db *sql.DB
}

// NewFriendRepository creates a new SQLite-backed friend repository.
func NewFriendRepository(db *sql.DB) *SQLiteFriendRepository {
	return &SQLiteFriendRepository{db: db}
}

// Request creates a pending friendship. Rejects self-friendship and pairs
// that already have a row in either direction.
func (r *SQLiteFriendRepository) Request(ctx context.Context, requesterID, addresseeID string) (*Friendship, error) {
	if requesterID == addresseeID {
		return nil, ErrSelfFriendship
	}

	existing, err := r.GetBetween(ctx, requesterID, addresseeID)
	if err != nil && !errors.Is(err, ErrFriendshipNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrFriendshipExists
	}

	now := time.Now().UTC().Format(time.RFC3339)
	f := &Friendship{
		RequesterID: requesterID,
		AddresseeID: addresseeID,
		Status:      FriendPending,
	}
	f.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO friendships (requester_id, addressee_id, status, created_at)
		 VALUES (?, ?, ?, ?)`,
		f.RequesterID, f.AddresseeID, string(f.Status), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrFriendshipExists
		}
		return nil, fmt.Errorf("creating friendship: %w", err)
	}

	return f, nil
}

// GetBetween finds the friendship row for a pair in either direction.
func (r *SQLiteFriendRepository) GetBetween(ctx context.Context, userA, userB string) (*Friendship, error) {
	var f Friendship
	var status, createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT requester_id, addressee_id, status, created_at FROM friendships
		 WHERE (requester_id = ? AND addressee_id = ?)
		    OR (requester_id = ? AND addressee_id = ?)`,
		userA, userB, userB, userA,
	).Scan(&f.RequesterID, &f.AddresseeID, &status, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFriendshipNotFound
		}
		return nil, fmt.Errorf("getting friendship: %w", err)
	}

	f.Status = FriendStatus(status)
	f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &f, nil
}

// HasApproved reports whether an approved friendship row exists for the
// pair, in either direction.
func (r *SQLiteFriendRepository) HasApproved(ctx context.Context, userA, userB string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM friendships
		 WHERE status = ?
		   AND ((requester_id = ? AND addressee_id = ?)
		     OR (requester_id = ? AND addressee_id = ?))`,
		string(FriendApproved), userA, userB, userB, userA,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("checking friendship: %w", err)
	}
	return true, nil
}

// UpdateStatus sets the status of the pair's row, whichever direction it
// was stored in.
func (r *SQLiteFriendRepository) UpdateStatus(ctx context.Context, userA, userB string, status FriendStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE friendships SET status = ?
		 WHERE (requester_id = ? AND addressee_id = ?)
		    OR (requester_id = ? AND addressee_id = ?)`,
		string(status), userA, userB, userB, userA,
	)
	if err != nil {
		return fmt.Errorf("updating friendship status: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

// ListForUser returns all friendship rows where the user is either side.
func (r *SQLiteFriendRepository) ListForUser(ctx context.Context, userID string) ([]Friendship, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT requester_id, addressee_id, status, created_at FROM friendships
		 WHERE requester_id = ? OR addressee_id = ?
		 ORDER BY created_at ASC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing friendships: %w", err)
	}
	defer rows.Close()

	var friendships []Friendship
	for rows.Next() {
		var f Friendship
		var status, createdAt string

		if err := rows.Scan(&f.RequesterID, &f.AddresseeID, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning friendship: %w", err)
		}

		f.Status = FriendStatus(status)
		f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

		friendships = append(friendships, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating friendships: %w", err)
	}

	if friendships == nil {
		friendships = []Friendship{}
	}
	return friendships, nil
}

// Delete removes the pair's row, whichever direction it was stored in.
func (r *SQLiteFriendRepository) Delete(ctx context.Context, userA, userB string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM friendships
		 WHERE (requester_id = ? AND addressee_id = ?)
		    OR (requester_id = ? AND addressee_id = ?)`,
		userA, userB, userB, userA,
	)
	if err != nil {
		return fmt.Errorf("deleting friendship: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}
