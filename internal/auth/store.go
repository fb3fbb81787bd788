package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/database"
)

// UserStore is the credential store: a username to credential+role mapping
// that survives restarts.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, ids []int64) error
	Count(ctx context.Context) (int, error)
}

// SQLiteUserStore keeps accounts in users and their roles in claims.
// Writes are serialised by the single SQLite connection.
type SQLiteUserStore struct {
	db *database.DB
}

// NewSQLiteUserStore creates a credential store on db.
func NewSQLiteUserStore(db *database.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db}
}

const selectUser = `SELECT u.id, u.username, u.password_hash, c.role, u.created_at
	FROM users u JOIN claims c ON c.user_id = u.id`

// Create inserts the account and its role claim in one transaction and sets
// user.ID. A taken username yields ErrUsernameExists and writes nothing.
func (s *SQLiteUserStore) Create(ctx context.Context, user *User) error {
	created := time.Now().UTC().Truncate(time.Second)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
			user.Username, user.PasswordHash, created.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrUsernameExists
			}
			return fmt.Errorf("inserting user: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading user id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO claims (user_id, role) VALUES (?, ?)", id, string(user.Role),
		); err != nil {
			return fmt.Errorf("inserting role claim: %w", err)
		}

		user.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	user.CreatedAt = created
	return nil
}

// GetByUsername returns ErrUserNotFound when no account matches.
func (s *SQLiteUserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+" WHERE u.username = ?", username))
}

// List returns all accounts ordered by id.
func (s *SQLiteUserStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, selectUser+" ORDER BY u.id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Delete removes every listed account together with its role claim. The
// whole batch is one transaction: if any id is unknown nothing is deleted
// and the error wraps ErrUserNotFound. Repeated ids count once.
func (s *SQLiteUserStore) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		seen := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			if _, err := tx.ExecContext(ctx, "DELETE FROM claims WHERE user_id = ?", id); err != nil {
				return fmt.Errorf("deleting role claim %d: %w", id, err)
			}
			res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
			if err != nil {
				return fmt.Errorf("deleting user %d: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
				return fmt.Errorf("%w: id %d", ErrUserNotFound, id)
			}
		}
		return nil
	})
}

// Count returns the number of accounts.
func (s *SQLiteUserStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var u User
	var role, createdAt string

	if err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &u, nil
}

// isUniqueViolation checks for a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
