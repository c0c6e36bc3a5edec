package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/parley-im/parley-core/internal/audit"
	"github.com/parley-im/parley-core/internal/auth"
)

// minPasswordLength mirrors what the clients enforce; the server is the
// backstop.
const minPasswordLength = 8

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// userResponse is the public view of a user. The password hash never
// leaves the auth package (json:"-" on the model), but a dedicated response
// type keeps the wire shape stable regardless of model changes.
type userResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Role        string `json:"role"`
}

func (s *Server) userResponseFor(r *http.Request, user *auth.User) userResponse {
	role, err := s.sessions.Role(r.Context(), user.ID)
	if err != nil {
		// Role lookup failure downgrades the view, not the request.
		role = auth.RoleDefault
	}
	return userResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Avatar:      user.Avatar,
		Role:        string(role),
	}
}

// handleRegister creates a new account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if !auth.IsValidUsername(req.Username) {
		writeBadRequest(w, "username must be 1-64 characters of letters, digits, dot, dash or underscore")
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeBadRequest(w, "a valid email address is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	hash, err := s.sessions.HashPassword(req.Password)
	if err != nil {
		writeInternalError(w, "failed to process credentials")
		return
	}

	user := &auth.User{
		Username:     req.Username,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameExists):
			writeConflict(w, "username is already taken")
		case errors.Is(err, auth.ErrEmailExists):
			writeConflict(w, "email is already registered")
		default:
			s.logger.Error("user create failed", "error", err)
			writeInternalError(w, "failed to create user")
		}
		return
	}

	s.audit.Record(r.Context(), audit.ActionRegister, user.ID, user.ID, map[string]any{
		"username": user.Username,
	})

	writeJSON(w, http.StatusCreated, s.userResponseFor(r, user))
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse carries the token pair plus the authenticated user.
type loginResponse struct {
	auth.TokenPair
	TokenType string       `json:"token_type"`
	User      userResponse `json:"user"`
}

// handleLogin authenticates a user and issues an access/refresh pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	pair, user, err := s.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.audit.Record(r.Context(), audit.ActionLoginFailed, "", "", map[string]any{
				"username": req.Username,
			})
			s.recordAuthEvent("login", "deny", "invalid credentials", "")
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	s.audit.Record(r.Context(), audit.ActionLogin, user.ID, user.ID, nil)
	s.recordAuthEvent("login", "allow", "", user.ID)

	writeJSON(w, http.StatusOK, loginResponse{
		TokenPair: *pair,
		TokenType: "Bearer",
		User:      s.userResponseFor(r, user),
	})
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleRefresh rotates a refresh token and returns a fresh pair.
//
// All rejection classes map to 401 with a generic message; the distinction
// (malformed, unknown, expired, invalidated) is logged and audited but
// never disclosed to the caller.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := s.sessions.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshMalformed):
			s.recordAuthEvent("refresh", "deny", err.Error(), "")
			writeBadRequest(w, "refresh token is malformed")
		case errors.Is(err, auth.ErrRefreshNotFound):
			s.recordAuthEvent("refresh", "deny", err.Error(), "")
			writeNotFound(w, "refresh token not found")
		case errors.Is(err, auth.ErrRefreshExpired),
			errors.Is(err, auth.ErrRefreshInvalid):
			s.recordAuthEvent("refresh", "deny", err.Error(), "")
			writeUnauthorized(w, "refresh token is invalid or expired")
		default:
			s.logger.Error("token rotation failed", "error", err)
			writeInternalError(w, "token rotation failed")
		}
		return
	}

	var userID string
	if claims, err := s.codec.Verify(pair.AccessToken); err == nil {
		userID = claims.Subject
	}
	s.audit.Record(r.Context(), audit.ActionTokenRefresh, userID, "", nil)

	s.recordAuthEvent("refresh", "allow", "", userID)
	writeJSON(w, http.StatusOK, loginResponse{
		TokenPair: *pair,
		TokenType: "Bearer",
	})
}

// handleLogout invalidates every refresh token the caller holds.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r.Context())
	if userID == "" {
		writeUnauthorized(w, "token is invalid or expired")
		return
	}

	if err := s.sessions.Logout(r.Context(), userID); err != nil {
		s.logger.Error("logout failed", "user_id", userID, "error", err)
		writeInternalError(w, "logout failed")
		return
	}

	s.audit.Record(r.Context(), audit.ActionLogout, userID, userID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r.Context())
	if userID == "" {
		writeUnauthorized(w, "token is invalid or expired")
		return
	}

	user, err := s.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			// Token outlived the account.
			writeUnauthorized(w, "account no longer exists")
			return
		}
		writeInternalError(w, "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, s.userResponseFor(r, user))
}

// handleListUsers returns all users. Admin only.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list users")
		return
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, s.userResponseFor(r, &users[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out, "count": len(out)})
}

// recordAuthEvent forwards an auth outcome to the metrics sink, if enabled.
func (s *Server) recordAuthEvent(event, outcome, reason, userID string) {
	if s.metrics == nil {
		return
	}
	s.metrics.WriteAuthEvent(event, outcome, reason, userID)
}
