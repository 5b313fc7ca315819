package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/database"
)

func TestMigrationsApplyAndRollBack(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "m.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"telemetry_records", "devices", "notifications", "delivery_results", "notification_rules", "user_preferences", "audit_logs"} {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n); err != nil {
			t.Fatalf("query error: %v", err)
		}
		if n != 1 {
			t.Errorf("table %s missing after Migrate()", table)
		}
	}

	applied, _, err := db.MigrationStatus(ctx, FS)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	for range applied {
		if err := db.MigrateDown(ctx, FS); err != nil {
			t.Fatalf("MigrateDown() error = %v", err)
		}
	}

	applied, pending, err := db.MigrationStatus(ctx, FS)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 || len(pending) != 3 {
		t.Errorf("after full rollback applied=%d pending=%d, want 0 and 3", len(applied), len(pending))
	}
}
