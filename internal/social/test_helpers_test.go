package social

import (
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the social schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "social-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrationSQL := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			avatar TEXT,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE groups (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			icon TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE group_members (
			user_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			invite_status TEXT,
			joined_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (user_id, group_id),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE,
			CHECK (role IN ('owner', 'admin', 'member')),
			CHECK (invite_status IS NULL OR invite_status IN ('pending', 'approved', 'rejected'))
		) STRICT;

		CREATE TABLE friendships (
			requester_id TEXT NOT NULL,
			addressee_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (requester_id, addressee_id),
			FOREIGN KEY (requester_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (addressee_id) REFERENCES users(id) ON DELETE CASCADE,
			CHECK (requester_id != addressee_id),
			CHECK (status IN ('pending', 'approved', 'rejected'))
		) STRICT;
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying social migration: %v", err)
	}

	return db
}

// seedTestUser inserts a bare user row and returns its id.
func seedTestUser(t *testing.T, db *sql.DB, username string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO users (id, username, email, display_name, password_hash)
		 VALUES (?, ?, ?, ?, 'x')`,
		id, username, username+"@example.com", username)
	if err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
	return id
}
