package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/parley-im/parley-core/internal/auth"
	"github.com/parley-im/parley-core/internal/social"
)

// maxGroupNameLength bounds group names; SQLite would happily store more.
const maxGroupNameLength = 128

// createGroupRequest is the request body for POST /groups.
type createGroupRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// handleCreateGroup creates a group with the caller as owner.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r.Context())
	if userID == "" {
		writeUnauthorized(w, "token is invalid or expired")
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxGroupNameLength {
		writeBadRequest(w, "group name must be 1-128 characters")
		return
	}

	group := &social.Group{Name: req.Name, Icon: req.Icon}
	if err := s.groups.CreateGroup(r.Context(), group, userID); err != nil {
		s.logger.Error("group create failed", "error", err)
		writeInternalError(w, "failed to create group")
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

// handleListMyGroups returns the groups the caller belongs to.
func (s *Server) handleListMyGroups(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r.Context())
	if userID == "" {
		writeUnauthorized(w, "token is invalid or expired")
		return
	}

	groups, err := s.groups.ListGroupsForUser(r.Context(), userID)
	if err != nil {
		writeInternalError(w, "failed to list groups")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"groups": groups, "count": len(groups)})
}

// handleGetGroup returns one group. Members only.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r.Context())
	groupID := chi.URLParam(r, "id")

	if ok, err := s.groups.IsMember(r.Context(), userID, groupID); err != nil {
		writeInternalError(w, "failed to check membership")
		return
	} else if !ok {
		writeForbidden(w, "you are not a member of this group")
		return
	}

	group, err := s.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, social.ErrGroupNotFound) {
			writeNotFound(w, "group not found")
			return
		}
		writeInternalError(w, "failed to load group")
		return
	}

	writeJSON(w, http.StatusOK, group)
}

// handleDeleteGroup deletes a group. Allowed for the group owner or a
// platform admin.
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "token is invalid or expired")
		return
	}
	groupID := chi.URLParam(r, "id")

	if _, err := s.groups.GetGroup(r.Context(), groupID); err != nil {
		if errors.Is(err, social.ErrGroupNotFound) {
			writeNotFound(w, "group not found")
			return
		}
		writeInternalError(w, "failed to load group")
		return
	}

	if !s.isGroupOwner(r, claims.Subject, groupID) && claims.Role != auth.RoleAdmin {
		writeForbidden(w, "only the group owner or a platform admin can delete a group")
		return
	}

	if err := s.groups.DeleteGroup(r.Context(), groupID); err != nil {
		writeInternalError(w, "failed to delete group")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "group deleted"})
}

// handleListMembers returns a group's membership rows. Members only.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r.Context())
	groupID := chi.URLParam(r, "id")

	if ok, err := s.groups.IsMember(r.Context(), userID, groupID); err != nil {
		writeInternalError(w, "failed to check membership")
		return
	} else if !ok {
		writeForbidden(w, "you are not a member of this group")
		return
	}

	members, err := s.groups.ListMembers(r.Context(), groupID)
	if err != nil {
		writeInternalError(w, "failed to list members")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"members": members, "count": len(members)})
}

// addMemberRequest is the request body for POST /groups/{id}/members.
type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// handleAddMember invites a user to a group. Owners and admins of the group
// may invite; the invite lands as a pending membership row the invitee must
// respond to.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	requesterID := callerID(r.Context())
	groupID := chi.URLParam(r, "id")

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeBadRequest(w, "user_id is required")
		return
	}
	role := social.GroupRole(req.Role)
	if req.Role == "" {
		role = social.GroupRoleMember
	}
	if role != social.GroupRoleMember && role != social.GroupRoleAdmin {
		writeBadRequest(w, "role must be member or admin")
		return
	}

	group, err := s.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, social.ErrGroupNotFound) {
			writeNotFound(w, "group not found")
			return
		}
		writeInternalError(w, "failed to load group")
		return
	}

	caller, err := s.groups.GetMembership(r.Context(), requesterID, groupID)
	if err != nil || (caller.Role != social.GroupRoleOwner && caller.Role != social.GroupRoleAdmin) {
		writeForbidden(w, "you don't have permission to invite users")
		return
	}

	m := &social.Membership{
		UserID:       req.UserID,
		GroupID:      groupID,
		Role:         role,
		InviteStatus: social.InvitePending,
	}
	if err := s.groups.AddMember(r.Context(), m); err != nil {
		if errors.Is(err, social.ErrAlreadyMember) {
			writeConflict(w, "user is already a member or has a pending invite")
			return
		}
		writeInternalError(w, "failed to invite user")
		return
	}

	s.notifier.GroupInvite(req.UserID, requesterID, groupID, group.Name)

	writeJSON(w, http.StatusCreated, map[string]any{
		"group_id": groupID,
		"user_id":  req.UserID,
		"status":   string(social.InvitePending),
	})
}

// inviteResponseRequest is the request body for POST /groups/{id}/invite.
type inviteResponseRequest struct {
	Action string `json:"action"` // accept | reject
}

// handleInviteResponse lets the caller accept or reject their pending invite.
func (s *Server) handleInviteResponse(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r.Context())
	groupID := chi.URLParam(r, "id")

	var req inviteResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Action != "accept" && req.Action != "reject" {
		writeBadRequest(w, "action must be accept or reject")
		return
	}

	m, err := s.groups.GetMembership(r.Context(), userID, groupID)
	if err != nil {
		if errors.Is(err, social.ErrMembershipNotFound) {
			writeNotFound(w, "no invite found for this group")
			return
		}
		writeInternalError(w, "failed to load invite")
		return
	}
	if m.InviteStatus != social.InvitePending {
		writeConflict(w, "no pending invite for this group")
		return
	}

	status := social.InviteRejected
	if req.Action == "accept" {
		status = social.InviteApproved
	}
	if err := s.groups.SetInviteStatus(r.Context(), userID, groupID, status); err != nil {
		writeInternalError(w, "failed to update invite")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": groupID,
		"status":   string(status),
		"role":     string(m.Role),
	})
}

// handleLeaveGroup removes the caller's own membership. The owner cannot
// leave; ownership must be transferred first so the group is never orphaned.
func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r.Context())
	groupID := chi.URLParam(r, "id")

	m, err := s.groups.GetMembership(r.Context(), userID, groupID)
	if err != nil {
		if errors.Is(err, social.ErrMembershipNotFound) {
			writeNotFound(w, "you are not a member of this group")
			return
		}
		writeInternalError(w, "failed to load membership")
		return
	}
	if m.Role == social.GroupRoleOwner {
		writeForbidden(w, "owner cannot leave the group, transfer ownership first")
		return
	}

	if err := s.groups.RemoveMember(r.Context(), userID, groupID); err != nil {
		writeInternalError(w, "failed to leave group")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "left the group"})
}

// handleRemoveMember removes another user from the group. The owner may
// remove anyone; an admin may only remove plain members.
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	requesterID := callerID(r.Context())
	groupID := chi.URLParam(r, "id")
	targetID := chi.URLParam(r, "userID")

	target, err := s.groups.GetMembership(r.Context(), targetID, groupID)
	if err != nil {
		if errors.Is(err, social.ErrMembershipNotFound) {
			writeNotFound(w, "user is not a member of this group")
			return
		}
		writeInternalError(w, "failed to load membership")
		return
	}

	requester, err := s.groups.GetMembership(r.Context(), requesterID, groupID)
	if err != nil {
		writeForbidden(w, "you are not a member of this group")
		return
	}

	switch {
	case requester.Role == social.GroupRoleOwner && requesterID != targetID:
		// Owner removes anyone else.
	case requester.Role == social.GroupRoleAdmin && target.Role == social.GroupRoleMember:
		// Admin removes plain members only.
	default:
		writeForbidden(w, "you don't have permission to remove this member")
		return
	}

	if err := s.groups.RemoveMember(r.Context(), targetID, groupID); err != nil {
		writeInternalError(w, "failed to remove member")
		return
	}

	s.notifier.GroupRemoved(targetID, requesterID, groupID)

	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": groupID,
		"user_id":  targetID,
		"message":  "user was removed from group",
	})
}

// updateRoleRequest is the request body for PATCH /groups/{id}/members/{userID}.
type updateRoleRequest struct {
	Role string `json:"role"` // owner | admin
}

// handleUpdateMemberRole changes a member's role. Owner only. Setting the
// role to owner transfers ownership: the target becomes owner and the
// caller is demoted to admin atomically.
func (s *Server) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	requesterID := callerID(r.Context())
	groupID := chi.URLParam(r, "id")
	targetID := chi.URLParam(r, "userID")

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	newRole := social.GroupRole(req.Role)
	if newRole != social.GroupRoleOwner && newRole != social.GroupRoleAdmin {
		writeBadRequest(w, "role must be owner or admin")
		return
	}

	requester, err := s.groups.GetMembership(r.Context(), requesterID, groupID)
	if err != nil || requester.Role != social.GroupRoleOwner {
		writeForbidden(w, "only the group owner can update member roles")
		return
	}

	target, err := s.groups.GetMembership(r.Context(), targetID, groupID)
	if err != nil {
		if errors.Is(err, social.ErrMembershipNotFound) {
			writeNotFound(w, "user is not a member of this group")
			return
		}
		writeInternalError(w, "failed to load membership")
		return
	}

	if newRole == social.GroupRoleOwner {
		if requesterID == targetID {
			writeBadRequest(w, "you are already the owner")
			return
		}
		if err := s.groups.TransferOwnership(r.Context(), groupID, requesterID, targetID); err != nil {
			writeInternalError(w, "failed to transfer ownership")
			return
		}
	} else {
		if target.Role == social.GroupRoleOwner {
			writeBadRequest(w, "cannot change the owner's role")
			return
		}
		if err := s.groups.UpdateMemberRole(r.Context(), targetID, groupID, newRole); err != nil {
			writeInternalError(w, "failed to update role")
			return
		}
	}

	s.notifier.RoleChanged(targetID, requesterID, groupID, string(newRole))

	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": groupID,
		"user_id":  targetID,
		"role":     string(newRole),
	})
}

// isGroupOwner reports whether userID owns groupID. Lookup failures count
// as not-owner.
func (s *Server) isGroupOwner(r *http.Request, userID, groupID string) bool {
	m, err := s.groups.GetMembership(r.Context(), userID, groupID)
	return err == nil && m.Role == social.GroupRoleOwner
}
