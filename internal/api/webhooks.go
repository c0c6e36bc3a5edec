package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/parley-im/parley-core/internal/acl"
)

// webhookRequest is the payload the broker posts for both connect-auth and
// acl-auth. The client's access token travels in the password field; topic
// and action are only present on ACL checks.
type webhookRequest struct {
	ClientID string `json:"clientid"`
	Username string `json:"username"`
	Password string `json:"password"`
	Topic    string `json:"topic"`
	Action   string `json:"action"`
}

// isWebhookPath reports whether the request is on the broker webhook
// surface, where error responses must keep the allow/deny shape.
func isWebhookPath(path string) bool {
	return strings.HasPrefix(path, "/webhooks/")
}

// handleWebhookPing is the broker-side health check.
func (s *Server) handleWebhookPing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "webhooks endpoint is active"})
}

// handleWebhookConnect authenticates an MQTT connection attempt.
//
// Deny paths: missing fields, invalid/expired token, and a username that
// does not match the token subject. The broker treats anything but
// result=allow as a rejection, so every branch answers with the
// allow/deny shape.
func (s *Server) handleWebhookConnect(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("connect webhook with invalid body")
		writeWebhookDeny(w, http.StatusBadRequest, "No JSON body provided")
		return
	}

	if req.ClientID == "" || req.Username == "" || req.Password == "" {
		s.logger.Warn("connect webhook missing fields",
			"clientid", req.ClientID, "username", req.Username)
		writeWebhookDeny(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	claims, err := s.codec.Verify(req.Password)
	if err != nil {
		s.logger.Warn("connect webhook with invalid token", "clientid", req.ClientID)
		s.recordAuthEvent("connect", "deny", "invalid token", "")
		writeWebhookDeny(w, http.StatusUnauthorized, "Token expired or invalid")
		return
	}

	// The asserted username must be the token subject. A client presenting
	// someone else's id with a valid token of its own is lying about its
	// identity.
	if !strings.EqualFold(req.Username, claims.Subject) {
		s.logger.Warn("connect webhook subject mismatch",
			"clientid", req.ClientID, "username", req.Username, "subject", claims.Subject)
		s.recordAuthEvent("connect", "deny", "subject mismatch", claims.Subject)
		writeWebhookDeny(w, http.StatusUnauthorized, "Username does not match token subject")
		return
	}

	s.logger.Info("broker connection authorized",
		"clientid", req.ClientID, "user_id", claims.Subject)
	s.recordAuthEvent("connect", "allow", "", claims.Subject)

	writeWebhookAllow(w, "Connection authorized")
}

// handleWebhookACL authorizes a publish or subscribe on a topic.
//
// Token validation mirrors the connect webhook; the topic decision itself
// is delegated to the ACL engine, which never errors; lookup failures
// surface as deny decisions.
func (s *Server) handleWebhookACL(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("acl webhook with invalid body")
		writeWebhookDeny(w, http.StatusBadRequest, "No JSON body provided")
		return
	}

	if req.ClientID == "" || req.Username == "" || req.Password == "" || req.Topic == "" || req.Action == "" {
		s.logger.Warn("acl webhook missing fields", "clientid", req.ClientID)
		writeWebhookDeny(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	claims, err := s.codec.Verify(req.Password)
	if err != nil {
		s.logger.Warn("acl webhook with invalid token",
			"clientid", req.ClientID, "topic", req.Topic)
		s.recordAuthEvent("acl", "deny", "invalid token", "")
		writeWebhookDeny(w, http.StatusUnauthorized, "Token expired or invalid")
		return
	}

	if !strings.EqualFold(req.Username, claims.Subject) {
		s.logger.Warn("acl webhook subject mismatch",
			"clientid", req.ClientID, "username", req.Username, "subject", claims.Subject)
		s.recordAuthEvent("acl", "deny", "subject mismatch", claims.Subject)
		writeWebhookDeny(w, http.StatusUnauthorized, "Username does not match token subject")
		return
	}

	start := time.Now()
	decision := s.acl.Authorize(r.Context(), claims.Subject, req.Topic, acl.Action(req.Action))
	s.recordACLDecision(req.Topic, req.Action, decision.Allow, time.Since(start))

	if !decision.Allow {
		s.logger.Info("topic action denied",
			"user_id", claims.Subject, "topic", req.Topic,
			"action", req.Action, "reason", decision.Reason)
		writeWebhookDeny(w, http.StatusForbidden, decision.Reason)
		return
	}

	writeWebhookAllow(w, decision.Reason)
}

// recordACLDecision forwards an ACL outcome to the metrics sink, if enabled.
func (s *Server) recordACLDecision(topic, action string, allowed bool, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	class := "unknown"
	switch {
	case strings.HasPrefix(topic, "/groups/"):
		class = "groups"
	case strings.HasPrefix(topic, "/dms/"):
		class = "dms"
	case strings.HasPrefix(topic, "/users/"):
		class = "users"
	}

	result := "deny"
	if allowed {
		result = "allow"
	}

	s.metrics.WriteACLDecision(action, class, result, float64(elapsed.Microseconds())/1000.0)
}
