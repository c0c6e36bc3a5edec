package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parley-im/parley-core/internal/auth"
	"github.com/parley-im/parley-core/internal/social"
)

// friendRequestBody is the request body for POST /friends.
type friendRequestBody struct {
	UserID string `json:"user_id"`
}

// handleFriendRequest sends a friend request to another user.
func (s *Server) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	requesterID := callerID(r.Context())
	if requesterID == "" {
		writeUnauthorized(w, "token is invalid or expired")
		return
	}

	var req friendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeBadRequest(w, "user_id is required")
		return
	}

	target, err := s.users.GetByID(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to look up user")
		return
	}

	friendship, err := s.friends.Request(r.Context(), requesterID, target.ID)
	if err != nil {
		switch {
		case errors.Is(err, social.ErrSelfFriendship):
			writeBadRequest(w, "cannot send a friend request to yourself")
		case errors.Is(err, social.ErrFriendshipExists):
			writeConflict(w, "a friendship or pending request already exists")
		default:
			writeInternalError(w, "failed to create friend request")
		}
		return
	}

	requester, err := s.users.GetByID(r.Context(), requesterID)
	if err == nil {
		s.notifier.FriendRequest(requesterID, target.ID, requester.Username)
	}

	writeJSON(w, http.StatusCreated, friendship)
}

// friendRespondBody is the request body for PATCH /friends/{userID}.
type friendRespondBody struct {
	Action string `json:"action"` // approve | reject
}

// handleFriendRespond lets the addressee approve or reject a pending
// request. Rejecting an already-approved friendship is also allowed; that
// is how blocking works.
func (s *Server) handleFriendRespond(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r.Context())
	peerID := chi.URLParam(r, "userID")

	var req friendRespondBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Action != "approve" && req.Action != "reject" {
		writeBadRequest(w, "action must be approve or reject")
		return
	}

	friendship, err := s.friends.GetBetween(r.Context(), userID, peerID)
	if err != nil {
		if errors.Is(err, social.ErrFriendshipNotFound) {
			writeNotFound(w, "no friendship found with this user")
			return
		}
		writeInternalError(w, "failed to load friendship")
		return
	}

	// Only the addressee decides a pending request. Either side may reject
	// an approved friendship.
	if friendship.Status == social.FriendPending && friendship.AddresseeID != userID {
		writeForbidden(w, "only the addressee can respond to a pending request")
		return
	}
	if friendship.Status == social.FriendApproved && req.Action == "approve" {
		writeConflict(w, "friendship is already approved")
		return
	}

	status := social.FriendRejected
	if req.Action == "approve" {
		status = social.FriendApproved
	}
	if err := s.friends.UpdateStatus(r.Context(), userID, peerID, status); err != nil {
		writeInternalError(w, "failed to update friendship")
		return
	}

	s.notifier.FriendDecision(peerID, userID, status == social.FriendApproved)

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": peerID,
		"status":  string(status),
	})
}

// handleListFriends returns every friendship row involving the caller,
// pending requests included.
func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r.Context())
	if userID == "" {
		writeUnauthorized(w, "token is invalid or expired")
		return
	}

	friendships, err := s.friends.ListForUser(r.Context(), userID)
	if err != nil {
		writeInternalError(w, "failed to list friendships")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"friendships": friendships,
		"count":       len(friendships),
	})
}

// handleFriendDelete removes the friendship row between the caller and the
// given user, whichever direction it was stored in.
func (s *Server) handleFriendDelete(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r.Context())
	peerID := chi.URLParam(r, "userID")

	if err := s.friends.Delete(r.Context(), userID, peerID); err != nil {
		if errors.Is(err, social.ErrFriendshipNotFound) {
			writeNotFound(w, "no friendship found with this user")
			return
		}
		writeInternalError(w, "failed to remove friendship")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "friendship removed"})
}
