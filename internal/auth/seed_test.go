package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestSeedAdmin_FirstBoot(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	password, err := SeedAdmin(ctx, repo, testHasher(), logger)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password == "" {
		t.Fatal("SeedAdmin() should return a generated password on first boot")
	}

	admin, err := repo.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetByUsername(admin) error = %v", err)
	}

	isAdmin, err := repo.IsAdmin(ctx, admin.ID)
	if err != nil {
		t.Fatalf("IsAdmin() error = %v", err)
	}
	if !isAdmin {
		t.Error("seed account should have an admins row")
	}

	if testHasher().Verify(admin.PasswordHash, password) != VerifyMatch {
		t.Error("returned password should verify against the stored hash")
	}
}

func TestSeedAdmin_SkipsWhenUsersExist(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	seedTestUser(t, db, "alice")

	password, err := SeedAdmin(context.Background(), repo, testHasher(), logger)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "" {
		t.Error("SeedAdmin() should skip when users exist")
	}
}
