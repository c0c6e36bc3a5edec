package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parley-im/parley-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Broker webhooks. The broker authenticates out-of-band (network
	// isolation); the payload carries the client's own JWT.
	r.Route("/webhooks/v1", func(r chi.Router) {
		r.Get("/ping", s.handleWebhookPing)
		r.Post("/connect", s.handleWebhookConnect)
		r.Post("/acl", s.handleWebhookACL)
	})

	// Client-facing API
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no bearer token required)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(s.guard(""))

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", s.handleListMyGroups)
				r.Post("/", s.handleCreateGroup)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetGroup)
					r.Delete("/", s.handleDeleteGroup)
					r.Get("/members", s.handleListMembers)
					r.Post("/members", s.handleAddMember)
					r.Post("/invite", s.handleInviteResponse)
					r.Post("/leave", s.handleLeaveGroup)
					r.Delete("/members/{userID}", s.handleRemoveMember)
					r.Patch("/members/{userID}", s.handleUpdateMemberRole)
				})
			})

			r.Route("/friends", func(r chi.Router) {
				r.Get("/", s.handleListFriends)
				r.Post("/", s.handleFriendRequest)
				r.Patch("/{userID}", s.handleFriendRespond)
				r.Delete("/{userID}", s.handleFriendDelete)
			})
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(s.guard(auth.RoleAdmin))

			r.Get("/users", s.handleListUsers)
			r.Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
