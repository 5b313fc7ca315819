package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-telemetry/migrations"
)

// OpenDB opens a fresh database under t.TempDir with every migration applied.
// The database is closed when the test ends.
func OpenDB(t testing.TB) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}
