package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const seedPasswordBytes = 16

// SeedAdmin creates the first admin account when the store is empty. With an
// empty password a random one is generated and written once to notice
// (os.Stderr when nil), never to the structured log; it must be changed by
// recreating the account. Returns the password used, or "" when seeding was
// skipped.
func SeedAdmin(ctx context.Context, store UserStore, username, password string, logger *slog.Logger, notice io.Writer) (string, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Debug("users exist, skipping admin seed")
		return "", nil
	}

	if username == "" {
		username = "admin"
	}
	if err := ValidateNewUser(username, RoleAdmin); err != nil {
		return "", fmt.Errorf("seed admin: %w", err)
	}

	generated := password == ""
	if generated {
		b := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(b)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	if err := store.Create(ctx, &User{Username: username, PasswordHash: hash, Role: RoleAdmin}); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	if generated {
		if notice == nil {
			notice = os.Stderr
		}
		fmt.Fprintf(notice, "\nInitial admin account %q created with password: %s\nStore it now; it is not shown again.\n\n", username, password) //nolint:errcheck // best-effort console notice
		logger.Warn("seed admin account created with a generated password",
			"username", username,
			"action_required", "password printed once to the console",
		)
	} else {
		logger.Info("seed admin account created", "username", username)
	}

	return password, nil
}
