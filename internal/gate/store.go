package gate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/database"
)

// SQLiteStore keeps the committed state in the single-row gate_state table.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore creates a store backed by db.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load reads the persisted state.
func (s *SQLiteStore) Load(ctx context.Context) (State, bool, error) {
	var code int
	err := s.db.QueryRowContext(ctx, "SELECT state FROM gate_state WHERE id = 1").Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return Closed, false, nil
	}
	if err != nil {
		return Closed, false, fmt.Errorf("querying gate state: %w", err)
	}

	state := State(code)
	if !state.Settled() {
		return Closed, false, fmt.Errorf("%w: persisted code %d", ErrInvalidState, code)
	}
	return state, true, nil
}

// Save upserts the state row.
func (s *SQLiteStore) Save(ctx context.Context, state State, actor string) error {
	if !state.Settled() {
		return fmt.Errorf("%w: %s cannot be persisted", ErrInvalidState, state)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gate_state (id, state, updated_at, updated_by) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   state = excluded.state,
		   updated_at = excluded.updated_at,
		   updated_by = excluded.updated_by`,
		int(state), time.Now().UTC().Format(time.RFC3339), actor,
	)
	if err != nil {
		return fmt.Errorf("saving gate state: %w", err)
	}
	return nil
}
