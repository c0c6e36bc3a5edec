package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parley-im/parley-core/internal/acl"
	"github.com/parley-im/parley-core/internal/audit"
	"github.com/parley-im/parley-core/internal/auth"
	"github.com/parley-im/parley-core/internal/infrastructure/config"
	"github.com/parley-im/parley-core/internal/infrastructure/logging"
	"github.com/parley-im/parley-core/internal/notify"
	"github.com/parley-im/parley-core/internal/social"
)

const testSigningSecret = "test-signing-secret-at-least-32-chars!"

// testServer bundles the HTTP test server with the dependencies tests need
// to reach behind the API.
type testServer struct {
	ts       *httptest.Server
	db       *sql.DB
	users    auth.UserRepository
	groups   social.GroupRepository
	friends  social.FriendRepository
	sessions *auth.Sessions
	codec    *auth.TokenCodec
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	path := filepath.Join(t.TempDir(), "api_test.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT,
			avatar TEXT,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE admins (
			user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE groups (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			icon TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE group_members (
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'member')),
			invite_status TEXT CHECK (invite_status IN ('pending', 'approved', 'rejected')),
			joined_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (user_id, group_id)
		) STRICT;

		CREATE TABLE friendships (
			requester_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			addressee_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (requester_id, addressee_id),
			CHECK (requester_id != addressee_id)
		) STRICT;

		CREATE TABLE refresh_tokens (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			is_valid INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			user_id TEXT,
			subject TEXT,
			details TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	logger := logging.Default()
	users := auth.NewUserRepository(db)
	tokens := auth.NewTokenRepository(db)
	groups := social.NewGroupRepository(db)
	friends := social.NewFriendRepository(db)
	hasher := auth.NewHasherWithParams(1, 8*1024, 1)
	codec := auth.NewTokenCodec(testSigningSecret, 0)
	sessions := auth.NewSessions(users, tokens, hasher, codec, 0, logger)
	auditRepo := audit.NewSQLiteRepository(db)

	server, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:   logger,
		Sessions: sessions,
		Codec:    codec,
		Users:    users,
		Groups:   groups,
		Friends:  friends,
		ACL:      acl.NewEngine(groups, friends, logger),
		Notifier: notify.NewNotifier(nil, logger),
		Audit:    audit.NewRecorder(auditRepo, logger),
		AuditLog: auditRepo,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	ts := httptest.NewServer(server.buildRouter())
	t.Cleanup(ts.Close)

	return &testServer{
		ts:       ts,
		db:       db,
		users:    users,
		groups:   groups,
		friends:  friends,
		sessions: sessions,
		codec:    codec,
	}
}

// do issues a request against the test server. token may be empty; body is
// JSON-encoded when non-nil.
func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, s.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	data, _ := io.ReadAll(resp.Body) //nolint:errcheck // test helper
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("%s %s returned invalid JSON: %v (%s)", method, path, err, data)
		}
	}

	return resp, decoded
}

// registerAndLogin creates an account over the API and returns
// (userID, accessToken, refreshToken).
func (s *testServer) registerAndLogin(t *testing.T, username string) (string, string, string) {
	t.Helper()

	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": "correct horse battery",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d (%v)", username, resp.StatusCode, body)
	}
	userID, _ := body["id"].(string)

	resp, body = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"username": username,
		"password": "correct horse battery",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d (%v)", username, resp.StatusCode, body)
	}

	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)
	if userID == "" || access == "" || refresh == "" {
		t.Fatalf("login %s returned incomplete credentials: %v", username, body)
	}
	return userID, access, refresh
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health body = %v", body)
	}
}

func TestGuard(t *testing.T) {
	s := newTestServer(t)
	_, access, _ := s.registerAndLogin(t, "alice")

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing token", "/api/v1/auth/me", "", http.StatusUnauthorized},
		{"malformed header", "/api/v1/auth/me", "NotBearer " + access, http.StatusBadRequest},
		{"garbage token", "/api/v1/auth/me", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"valid token", "/api/v1/auth/me", "Bearer " + access, http.StatusOK},
		{"default role on admin route", "/api/v1/users", "Bearer " + access, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, s.ts.URL+tt.path, nil)
			if err != nil {
				t.Fatalf("building request: %v", err)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := s.ts.Client().Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestGuard_AdminRoute(t *testing.T) {
	s := newTestServer(t)
	userID, _, _ := s.registerAndLogin(t, "root")

	// Promote and re-login so the token carries the admin role.
	if err := s.users.GrantAdmin(context.Background(), userID); err != nil {
		t.Fatalf("granting admin: %v", err)
	}
	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"username": "root",
		"password": "correct horse battery",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-login: status %d", resp.StatusCode)
	}
	access, _ := body["access_token"].(string)

	resp, body = s.do(t, http.MethodGet, "/api/v1/users", access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin list users: status %d (%v)", resp.StatusCode, body)
	}
	if body["count"].(float64) < 1 {
		t.Errorf("user list count = %v, want at least 1", body["count"])
	}

	// The audit trail recorded the registration and logins.
	resp, body = s.do(t, http.MethodGet, "/api/v1/audit?action=login", access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin list audit: status %d (%v)", resp.StatusCode, body)
	}
	if body["total"].(float64) < 1 {
		t.Errorf("audit total = %v, want at least 1", body["total"])
	}
}
