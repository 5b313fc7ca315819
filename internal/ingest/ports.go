package ingest

import (
	"context"

	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// Persister stores a batch of validated records.
// Implementations must treat the batch as read-only.
type Persister interface {
	Persist(ctx context.Context, batch []*telemetry.Record) error
}

// Forwarder receives flushed records for real-time processing.
type Forwarder interface {
	Submit(records ...*telemetry.Record)
}

// Logger is the logging surface used by the ingest package.
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

type noopPublisher struct{}

func (noopPublisher) PublishAlert(context.Context, telemetry.Alert) error { return nil }
