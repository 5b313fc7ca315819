package notify

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/audit"
	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
)

// Logger defines the logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PreferenceStore resolves a user's channel preferences.
// Unknown users get zero-value Preferences (in-app only).
type PreferenceStore interface {
	GetUserPreferences(ctx context.Context, userID string) (Preferences, error)
}

// Repository persists notifications and their delivery results.
type Repository interface {
	Create(ctx context.Context, ev *Event) error
	Complete(ctx context.Context, ev *Event) error
	Get(ctx context.Context, id string) (*Event, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Event, error)
	// MarkRead stamps read_at once. marked is false when it was already read.
	MarkRead(ctx context.Context, id string, at time.Time) (ev *Event, marked bool, err error)
}

// RuleStore supplies rules to the engine and records triggers.
type RuleStore interface {
	// ListActive returns active rules scoped to userID or SystemUser in
	// ascending priority order.
	ListActive(ctx context.Context, userID string) ([]Rule, error)
	RecordTrigger(ctx context.Context, id string, at time.Time) error
}

// Broadcaster publishes envelopes on hub channels. Satisfied by *hub.Hub.
type Broadcaster interface {
	Publish(channelID string, env hub.Envelope) (int, error)
}

// Auditor records audit log entries. Satisfied by *audit.SQLiteRepository.
type Auditor interface {
	Create(ctx context.Context, log *audit.AuditLog) error
}
