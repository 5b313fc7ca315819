// Package database provides SQLite connectivity for the telemetry core.
//
// This package manages:
//   - Database connection with WAL mode so readers don't block ingestion writes
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Transaction helper for multi-row repository writes
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: new columns must be NULLABLE or have
// DEFAULT values, and each .up.sql has a matching .down.sql.
package database
