package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLitePreferenceStore stores preferences in the user_preferences table.
type SQLitePreferenceStore struct {
	db *sql.DB
}

// NewSQLitePreferenceStore creates a preference store.
func NewSQLitePreferenceStore(db *sql.DB) *SQLitePreferenceStore {
	return &SQLitePreferenceStore{db: db}
}

// GetUserPreferences returns the user's preferences. A user without a row
// gets the defaults: every opt-in channel off.
func (s *SQLitePreferenceStore) GetUserPreferences(ctx context.Context, userID string) (Preferences, error) {
	p := Preferences{UserID: userID}
	var phone, email, categories sql.NullString
	var push, sms, mail int
	var updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT phone, email, push_enabled, sms_enabled, email_enabled, categories, updated_at
		 FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&phone, &email, &push, &sms, &mail, &categories, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("querying preferences: %w", err)
	}

	p.Phone = phone.String
	p.Email = email.String
	p.PushEnabled = push != 0
	p.SMSEnabled = sms != 0
	p.EmailEnabled = mail != 0
	if categories.Valid && categories.String != "" {
		if err := json.Unmarshal([]byte(categories.String), &p.Categories); err != nil {
			return p, fmt.Errorf("unmarshalling categories: %w", err)
		}
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return p, fmt.Errorf("parsing updated_at: %w", err)
	}
	return p, nil
}

// SetUserPreferences inserts or replaces the user's preferences.
func (s *SQLitePreferenceStore) SetUserPreferences(ctx context.Context, p *Preferences) error {
	if p.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	var categories any
	if len(p.Categories) > 0 {
		b, err := json.Marshal(p.Categories)
		if err != nil {
			return fmt.Errorf("marshalling categories: %w", err)
		}
		categories = string(b)
	}
	p.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, phone, email, push_enabled, sms_enabled, email_enabled, categories, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   phone = excluded.phone, email = excluded.email,
		   push_enabled = excluded.push_enabled, sms_enabled = excluded.sms_enabled,
		   email_enabled = excluded.email_enabled, categories = excluded.categories,
		   updated_at = excluded.updated_at`,
		p.UserID, nullableString(p.Phone), nullableString(p.Email),
		boolInt(p.PushEnabled), boolInt(p.SMSEnabled), boolInt(p.EmailEnabled),
		categories, p.UpdatedAt.Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}
