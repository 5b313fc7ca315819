package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/delivery"
)

// SQLiteRepository stores notifications in the notifications and
// delivery_results tables. The notifications table doubles as the in-app inbox.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a notification repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const notificationColumns = `id, user_id, category, priority, title, message, channels, status, source, data, created_at, completed_at, read_at`

// Create inserts a pending notification.
func (r *SQLiteRepository) Create(ctx context.Context, ev *Event) error {
	channels, err := json.Marshal(ev.Channels)
	if err != nil {
		return fmt.Errorf("marshalling channels: %w", err)
	}
	data, err := marshalOptional(ev.Data)
	if err != nil {
		return fmt.Errorf("marshalling data: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, category, priority, title, message, channels, status, source, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.Category, string(ev.Priority), ev.Title, ev.Message,
		string(channels), string(ev.Status), ev.Source, data,
		ev.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// Complete stores the final status and the per-channel results in one transaction.
func (r *SQLiteRepository) Complete(ctx context.Context, ev *Event) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var completed any
	if ev.CompletedAt != nil {
		completed = ev.CompletedAt.UTC().Format(timestampLayout)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE notifications SET status = ?, completed_at = ? WHERE id = ?`,
		string(ev.Status), completed, ev.ID)
	if err != nil {
		return fmt.Errorf("updating notification: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotificationNotFound
	}

	for _, dr := range ev.Results {
		meta, err := marshalOptional(dr.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling result metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO delivery_results (notification_id, channel, status, error, metadata, duration_ms, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, string(dr.Channel), string(dr.Status), nullableString(dr.Error), meta,
			dr.Duration.Milliseconds(), dr.Timestamp.UTC().Format(timestampLayout),
		); err != nil {
			return fmt.Errorf("inserting delivery result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing notification: %w", err)
	}
	return nil
}

// Get returns a notification with its delivery results.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("querying notification: %w", err)
	}
	if ev.Results, err = r.results(ctx, id); err != nil {
		return nil, err
	}
	return ev, nil
}

// ListByUser returns a user's inbox, newest first. limit <= 0 means 50.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	return events, nil
}

// MarkRead stamps read_at if the notification is unread.
func (r *SQLiteRepository) MarkRead(ctx context.Context, id string, at time.Time) (*Event, bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE id = ? AND read_at IS NULL`,
		at.UTC().Format(timestampLayout), id)
	if err != nil {
		return nil, false, fmt.Errorf("marking notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("marking notification read: %w", err)
	}

	ev, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return ev, n > 0, nil
}

func (r *SQLiteRepository) results(ctx context.Context, id string) ([]DeliveryResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel, status, error, metadata, duration_ms, timestamp
		 FROM delivery_results WHERE notification_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("querying delivery results: %w", err)
	}
	defer rows.Close()

	var out []DeliveryResult
	for rows.Next() {
		var dr DeliveryResult
		var channel, status, ts string
		var errText, meta sql.NullString
		var ms int64
		if err := rows.Scan(&channel, &status, &errText, &meta, &ms, &ts); err != nil {
			return nil, fmt.Errorf("scanning delivery result: %w", err)
		}
		dr.Channel = Channel(channel)
		dr.Status = delivery.Status(status)
		dr.Error = errText.String
		dr.Duration = time.Duration(ms) * time.Millisecond
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &dr.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshalling result metadata: %w", err)
			}
		}
		if dr.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing result timestamp: %w", err)
		}
		out = append(out, dr)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (*Event, error) {
	var ev Event
	var priority, channels, status, createdAt string
	var data, completedAt, readAt sql.NullString

	if err := s.Scan(&ev.ID, &ev.UserID, &ev.Category, &priority, &ev.Title, &ev.Message,
		&channels, &status, &ev.Source, &data, &createdAt, &completedAt, &readAt); err != nil {
		return nil, err
	}
	ev.Priority = Priority(priority)
	ev.Status = Status(status)

	if err := json.Unmarshal([]byte(channels), &ev.Channels); err != nil {
		return nil, fmt.Errorf("unmarshalling channels: %w", err)
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &ev.Data); err != nil {
			return nil, fmt.Errorf("unmarshalling data: %w", err)
		}
	}

	var err error
	if ev.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if ev.CompletedAt, err = parseOptionalTime(completedAt); err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}
	if ev.ReadAt, err = parseOptionalTime(readAt); err != nil {
		return nil, fmt.Errorf("parsing read_at: %w", err)
	}
	return &ev, nil
}

func parseOptionalTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalOptional(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// nullableString returns nil for empty strings so optional columns store NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timestampLayout has fixed width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"
