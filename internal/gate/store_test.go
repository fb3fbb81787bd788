package gate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gate/migrations"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "gate-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

func TestSQLiteStore_LoadSave(t *testing.T) {
	store := NewSQLiteStore(testDB(t))
	ctx := context.Background()

	_, found, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if found {
		t.Error("Load() on fresh db found = true")
	}

	if err := store.Save(ctx, Open, "alice"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, Closed, "bob"); err != nil {
		t.Fatalf("Save() second error = %v", err)
	}

	state, found, err := store.Load(ctx)
	if err != nil || !found || state != Closed {
		t.Errorf("Load() = %v, %v, %v; want closed, true, nil", state, found, err)
	}

	if err := store.Save(ctx, Closing, "x"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Save(closing) error = %v, want ErrInvalidState", err)
	}
}

func TestMachine_RestoresAcrossRestart(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first, err := NewMachine(ctx, NewSQLiteStore(db), config.InitialStateRestore, logging.Discard())
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	if _, _, err := first.Toggle(ctx, "alice", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	second, err := NewMachine(ctx, NewSQLiteStore(db), config.InitialStateRestore, logging.Discard())
	if err != nil {
		t.Fatalf("NewMachine() after restart error = %v", err)
	}
	if second.State() != Open {
		t.Errorf("State() after restart = %v, want open", second.State())
	}
}
