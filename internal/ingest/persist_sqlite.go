package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// SQLitePersister stores records in the telemetry_records table.
type SQLitePersister struct {
	db *database.DB
}

// NewSQLitePersister creates a persister over an open, migrated database.
func NewSQLitePersister(db *database.DB) *SQLitePersister {
	return &SQLitePersister{db: db}
}

// Persist inserts the batch in one transaction.
func (p *SQLitePersister) Persist(ctx context.Context, batch []*telemetry.Record) error {
	return p.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO telemetry_records
				(id, device_id, type, timestamp_ms, data, quality_score, warnings, received_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing telemetry insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range batch {
			data, err := json.Marshal(rec.Data)
			if err != nil {
				return fmt.Errorf("marshalling data for %s: %w", rec.ID, err)
			}
			var warnings any
			if len(rec.Quality.Warnings) > 0 {
				b, err := json.Marshal(rec.Quality.Warnings)
				if err != nil {
					return fmt.Errorf("marshalling warnings for %s: %w", rec.ID, err)
				}
				warnings = string(b)
			}

			if _, err := stmt.ExecContext(ctx,
				rec.ID, rec.DeviceID, string(rec.Type), rec.Timestamp,
				string(data), rec.Quality.Score, warnings,
				rec.ReceivedAt.UTC().Format(time.RFC3339Nano),
			); err != nil {
				return fmt.Errorf("inserting telemetry %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

// Recent returns up to limit records for a device, newest first.
func (p *SQLitePersister) Recent(ctx context.Context, deviceID string, limit int) ([]*telemetry.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, device_id, type, timestamp_ms, data, quality_score, warnings, received_at
		FROM telemetry_records
		WHERE device_id = ?
		ORDER BY timestamp_ms DESC
		LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer rows.Close()

	var out []*telemetry.Record
	for rows.Next() {
		var (
			rec        telemetry.Record
			recordType string
			data       string
			warnings   sql.NullString
			receivedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &recordType, &rec.Timestamp,
			&data, &rec.Quality.Score, &warnings, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning telemetry: %w", err)
		}
		rec.Type = telemetry.RecordType(recordType)
		rec.Status = telemetry.StatusValidated
		if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
			return nil, fmt.Errorf("decoding telemetry data: %w", err)
		}
		if warnings.Valid {
			if err := json.Unmarshal([]byte(warnings.String), &rec.Quality.Warnings); err != nil {
				return nil, fmt.Errorf("decoding telemetry warnings: %w", err)
			}
		}
		rec.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
