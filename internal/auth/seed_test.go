package auth

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestSeedAdmin_GeneratesPasswordOnEmptyStore(t *testing.T) {
	store := NewSQLiteUserStore(testDB(t))
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	ctx := context.Background()

	var notice bytes.Buffer
	password, err := SeedAdmin(ctx, store, "", "", logger, &notice)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if len(password) != 2*seedPasswordBytes {
		t.Errorf("generated password length = %d", len(password))
	}

	admin, err := store.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetByUsername(admin) error = %v", err)
	}
	if admin.Role != RoleAdmin {
		t.Errorf("Role = %q, want admin", admin.Role)
	}
	ok, err := VerifyPassword(password, admin.PasswordHash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword() = %v, %v", ok, err)
	}
	if !strings.Contains(notice.String(), password) {
		t.Error("generated password should be printed to the console once")
	}
	if strings.Contains(logBuf.String(), password) {
		t.Error("generated password must not reach the structured log")
	}
}

func TestSeedAdmin_UsesConfiguredCredentials(t *testing.T) {
	store := NewSQLiteUserStore(testDB(t))
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	var notice bytes.Buffer

	password, err := SeedAdmin(context.Background(), store, "gatekeeper", "configured-pw", logger, &notice)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "configured-pw" {
		t.Errorf("password = %q", password)
	}
	if strings.Contains(logBuf.String(), "configured-pw") || notice.Len() != 0 {
		t.Error("configured password must not be logged or printed")
	}
	if _, err := store.GetByUsername(context.Background(), "gatekeeper"); err != nil {
		t.Errorf("GetByUsername(gatekeeper) error = %v", err)
	}
}

func TestSeedAdmin_SkipsWhenUsersExist(t *testing.T) {
	store := NewSQLiteUserStore(testDB(t))
	seedTestUser(t, store, "alice", "pw", RoleUser)

	password, err := SeedAdmin(context.Background(), store, "admin", "", slog.Default(), io.Discard)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "" {
		t.Errorf("password = %q, want empty when skipped", password)
	}
	if n, _ := store.Count(context.Background()); n != 1 { //nolint:errcheck // asserted via n
		t.Errorf("Count() = %d, want 1", n)
	}
}
