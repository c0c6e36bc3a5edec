package social

import (
	"errors"
	"time"
)

// GroupRole is a member's standing within a group.
type GroupRole string

const (
	GroupRoleOwner  GroupRole = "owner"
	GroupRoleAdmin  GroupRole = "admin"
	GroupRoleMember GroupRole = "member"
)

// IsValidGroupRole reports whether the role is one of the three tiers.
func IsValidGroupRole(r GroupRole) bool {
	return r == GroupRoleOwner || r == GroupRoleAdmin || r == GroupRoleMember
}

// InviteStatus tracks a pending group invitation. Empty means the member
// joined directly (creator, or added before invitations existed).
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteApproved InviteStatus = "approved"
	InviteRejected InviteStatus = "rejected"
)

// FriendStatus is the state of a friendship request.
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendApproved FriendStatus = "approved"
	FriendRejected FriendStatus = "rejected"
)

// Group is a chat group.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership is one user's row in a group. At most one row exists per
// (user, group) pair.
type Membership struct {
	UserID       string       `json:"user_id"`
	GroupID      string       `json:"group_id"`
	Role         GroupRole    `json:"role"`
	InviteStatus InviteStatus `json:"invite_status,omitempty"`
	JoinedAt     time.Time    `json:"joined_at"`
}

// Friendship is the single row representing the relation between two users,
// stored in request direction.
type Friendship struct {
	RequesterID string       `json:"requester_id"`
	AddresseeID string       `json:"addressee_id"`
	Status      FriendStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Sentinel errors for social operations.
var (
	ErrGroupNotFound      = errors.New("group not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrAlreadyMember      = errors.New("user is already a member of this group")
	ErrFriendshipNotFound = errors.New("friendship not found")
	ErrFriendshipExists   = errors.New("friendship already exists")
	ErrSelfFriendship     = errors.New("cannot befriend yourself")
	ErrNotOwner           = errors.New("user is not the group owner")
)
