package social

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GroupRepository defines the interface for group and membership persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group *Group, ownerID string) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	DeleteGroup(ctx context.Context, id string) error

	AddMember(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, userID, groupID string) (*Membership, error)

	// IsMember reports whether any membership row exists for (user, group),
	// regardless of role or invite status. This is the check the topic ACL
	// engine runs; it is applied uniformly across read paths.
	IsMember(ctx context.Context, userID, groupID string) (bool, error)

	ListMembers(ctx context.Context, groupID string) ([]Membership, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]Group, error)
	RemoveMember(ctx context.Context, userID, groupID string) error
	UpdateMemberRole(ctx context.Context, userID, groupID string, role GroupRole) error
	SetInviteStatus(ctx context.Context, userID, groupID string, status InviteStatus) error

	// TransferOwnership promotes the target to owner and demotes the
	// current owner to admin in one transaction, preserving the
	// one-owner-per-group invariant.
	TransferOwnership(ctx context.Context, groupID, ownerID, targetID string) error
}

// SQLiteGroupRepository implements GroupRepository using SQLite.
type SQLiteGroupRepository struct {
	db *sql.DB
}

// NewGroupRepository creates a new SQLite-backed group repository.
func NewGroupRepository(db *sql.DB) *SQLiteGroupRepository {
	return &SQLiteGroupRepository{db: db}
}

// CreateGroup inserts a group and its creator's owner membership in one
// transaction; a group never exists without an owner.
func (r *SQLiteGroupRepository) CreateGroup(ctx context.Context, group *Group, ownerID string) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	group.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning group creation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, icon, created_at) VALUES (?, ?, ?, ?)`,
		group.ID, group.Name, nullString(group.Icon), now,
	); err != nil {
		return fmt.Errorf("creating group: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (user_id, group_id, role, invite_status, joined_at)
		 VALUES (?, ?, ?, NULL, ?)`,
		ownerID, group.ID, string(GroupRoleOwner), now,
	); err != nil {
		return fmt.Errorf("creating owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing group creation: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (r *SQLiteGroupRepository) GetGroup(ctx context.Context, id string) (*Group, error) {
	var g Group
	var icon sql.NullString
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, icon, created_at FROM groups WHERE id = ?", id,
	).Scan(&g.ID, &g.Name, &icon, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("getting group: %w", err)
	}

	if icon.Valid {
		g.Icon = icon.String
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &g, nil
}

// DeleteGroup removes a group; memberships cascade.
func (r *SQLiteGroupRepository) DeleteGroup(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM groups WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// AddMember inserts a membership row.
func (r *SQLiteGroupRepository) AddMember(ctx context.Context, m *Membership) error {
	if m.Role == "" {
		m.Role = GroupRoleMember
	}

	now := time.Now().UTC().Format(time.RFC3339)
	m.JoinedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (user_id, group_id, role, invite_status, joined_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.UserID, m.GroupID, string(m.Role), nullString(string(m.InviteStatus)), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("adding member: %w", err)
	}

	return nil
}

// GetMembership retrieves the row for (user, group).
func (r *SQLiteGroupRepository) GetMembership(ctx context.Context, userID, groupID string) (*Membership, error) {
	var m Membership
	var role string
	var inviteStatus sql.NullString
	var joinedAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, group_id, role, invite_status, joined_at
		 FROM group_members WHERE user_id = ? AND group_id = ?`, userID, groupID,
	).Scan(&m.UserID, &m.GroupID, &role, &inviteStatus, &joinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("getting membership: %w", err)
	}

	m.Role = GroupRole(role)
	if inviteStatus.Valid {
		m.InviteStatus = InviteStatus(inviteStatus.String)
	}
	m.JoinedAt, _ = time.Parse(time.RFC3339, joinedAt) //nolint:errcheck // format is controlled

	return &m, nil
}

// IsMember reports raw membership row existence.
func (r *SQLiteGroupRepository) IsMember(ctx context.Context, userID, groupID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM group_members WHERE user_id = ? AND group_id = ?",
		userID, groupID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return true, nil
}

// ListMembers returns all membership rows for a group.
func (r *SQLiteGroupRepository) ListMembers(ctx context.Context, groupID string) ([]Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, group_id, role, invite_status, joined_at
		 FROM group_members WHERE group_id = ? ORDER BY joined_at ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var m Membership
		var role string
		var inviteStatus sql.NullString
		var joinedAt string

		if err := rows.Scan(&m.UserID, &m.GroupID, &role, &inviteStatus, &joinedAt); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}

		m.Role = GroupRole(role)
		if inviteStatus.Valid {
			m.InviteStatus = InviteStatus(inviteStatus.String)
		}
		m.JoinedAt, _ = time.Parse(time.RFC3339, joinedAt) //nolint:errcheck // format is controlled

		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memberships: %w", err)
	}

	if members == nil {
		members = []Membership{}
	}
	return members, nil
}

// ListGroupsForUser returns the groups a user has a membership row in,
// pending invites included.
func (r *SQLiteGroupRepository) ListGroupsForUser(ctx context.Context, userID string) ([]Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.icon, g.created_at
		 FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = ? ORDER BY g.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing groups for user: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		var icon sql.NullString
		var createdAt string

		if err := rows.Scan(&g.ID, &g.Name, &icon, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}

		if icon.Valid {
			g.Icon = icon.String
		}
		g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating groups: %w", err)
	}

	if groups == nil {
		groups = []Group{}
	}
	return groups, nil
}

// RemoveMember deletes a membership row.
func (r *SQLiteGroupRepository) RemoveMember(ctx context.Context, userID, groupID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM group_members WHERE user_id = ? AND group_id = ?", userID, groupID)
	if err != nil {
		return fmt.Errorf("removing member: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// UpdateMemberRole changes a member's role directly. Ownership changes must
// go through TransferOwnership instead.
func (r *SQLiteGroupRepository) UpdateMemberRole(ctx context.Context, userID, groupID string, role GroupRole) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE group_members SET role = ? WHERE user_id = ? AND group_id = ?",
		string(role), userID, groupID)
	if err != nil {
		return fmt.Errorf("updating member role: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// SetInviteStatus updates the invitation state for a membership row.
func (r *SQLiteGroupRepository) SetInviteStatus(ctx context.Context, userID, groupID string, status InviteStatus) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE group_members SET invite_status = ? WHERE user_id = ? AND group_id = ?",
		string(status), userID, groupID)
	if err != nil {
		return fmt.Errorf("setting invite status: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// TransferOwnership promotes targetID to owner and demotes ownerID to admin
// atomically. Both updates are conditional on current roles, so a stale
// caller (or a concurrent transfer) fails cleanly instead of minting a
// second owner.
func (r *SQLiteGroupRepository) TransferOwnership(ctx context.Context, groupID, ownerID, targetID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ownership transfer: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	// Demote the current owner, conditional on them actually holding the
	// role right now.
	result, err := tx.ExecContext(ctx,
		`UPDATE group_members SET role = ? WHERE user_id = ? AND group_id = ? AND role = ?`,
		string(GroupRoleAdmin), ownerID, groupID, string(GroupRoleOwner))
	if err != nil {
		return fmt.Errorf("demoting current owner: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotOwner
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE group_members SET role = ? WHERE user_id = ? AND group_id = ?`,
		string(GroupRoleOwner), targetID, groupID)
	if err != nil {
		return fmt.Errorf("promoting new owner: %w", err)
	}
	rows, _ = result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrMembershipNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ownership transfer: %w", err)
	}
	return nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
