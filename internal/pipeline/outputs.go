package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// OutputHandler delivers a processed record to one kind of destination.
type OutputHandler interface {
	Deliver(ctx context.Context, out Output, rec *telemetry.Record) error
}

// OutputHandlerFunc adapts a function to OutputHandler.
type OutputHandlerFunc func(ctx context.Context, out Output, rec *telemetry.Record) error

// Deliver calls f.
func (f OutputHandlerFunc) Deliver(ctx context.Context, out Output, rec *telemetry.Record) error {
	return f(ctx, out, rec)
}

// JSONPublisher publishes a JSON document to an MQTT topic.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
}

// StreamOutput re-publishes records on graylogic/stream/{target}.
type StreamOutput struct {
	Publisher JSONPublisher
}

// Deliver publishes rec.
func (s StreamOutput) Deliver(_ context.Context, out Output, rec *telemetry.Record) error {
	name := out.Target
	if name == "" {
		name = string(rec.Type)
	}
	return s.Publisher.PublishJSON((mqtt.Topics{}).Stream(name), rec)
}

// RecordStore persists processed records.
type RecordStore interface {
	Persist(ctx context.Context, batch []*telemetry.Record) error
}

// PersistenceOutput stores each processed record.
type PersistenceOutput struct {
	Store RecordStore
}

// Deliver persists rec.
func (p PersistenceOutput) Deliver(ctx context.Context, _ Output, rec *telemetry.Record) error {
	return p.Store.Persist(ctx, []*telemetry.Record{rec})
}

// Broadcaster publishes system-originated envelopes on hub channels.
type Broadcaster interface {
	Publish(channelID string, env hub.Envelope) (int, error)
}

// WebSocketOutput broadcasts records on a hub channel.
type WebSocketOutput struct {
	Hub Broadcaster
}

// Deliver broadcasts rec as a data envelope on out.Target.
func (w WebSocketOutput) Deliver(_ context.Context, out Output, rec *telemetry.Record) error {
	channel := out.Target
	if channel == "" {
		channel = hub.ChannelEnergyData
	}
	env := hub.NewEnvelope(hub.TypeData, channel, rec)
	if rec.Type == telemetry.TypeAlert {
		env.Type = hub.TypeAlert
		env.Priority = hub.PriorityHigh
	}
	_, err := w.Hub.Publish(channel, env)
	return err
}

// WebhookOutput POSTs records as JSON to out.Target.
type WebhookOutput struct {
	Client *http.Client
}

// NewWebhookOutput creates a webhook output with the given request timeout.
func NewWebhookOutput(timeout time.Duration) WebhookOutput {
	return WebhookOutput{Client: &http.Client{Timeout: timeout}}
}

// Deliver sends rec and requires a 2xx response.
func (w WebhookOutput) Deliver(ctx context.Context, out Output, rec *telemetry.Record) error {
	if out.Target == "" {
		return fmt.Errorf("webhook output has no target URL")
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, out.Target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Graylogic-Record", rec.ID)

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// AlertOutput turns processed records into operator alerts.
//
// The alert kind is out.Target (default "telemetry_alert"). Severity comes
// from the record's severity field, then out.Severity, then medium. The
// message is the record's summary field, then its message field.
type AlertOutput struct {
	Alerts telemetry.AlertPublisher
}

// Deliver publishes an alert built from rec.
func (a AlertOutput) Deliver(ctx context.Context, out Output, rec *telemetry.Record) error {
	return a.Alerts.PublishAlert(ctx, AlertFromRecord(out, rec))
}

// AlertFromRecord builds the alert an alert output would publish.
func AlertFromRecord(out Output, rec *telemetry.Record) telemetry.Alert {
	kind := out.Target
	if kind == "" {
		kind = "telemetry_alert"
	}

	severity := telemetry.SeverityMedium
	if s, ok := rec.Data["severity"].(string); ok && s != "" {
		severity = telemetry.Severity(s)
	} else if out.Severity != "" {
		severity = telemetry.Severity(out.Severity)
	}

	msg, _ := rec.Data["summary"].(string)
	if msg == "" {
		msg, _ = rec.Data["message"].(string)
	}
	if msg == "" {
		msg = fmt.Sprintf("%s alert from %s", rec.Type, rec.DeviceID)
	}

	return telemetry.Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		Severity:  severity,
		Message:   msg,
		DeviceID:  rec.DeviceID,
		Details:   map[string]any{"recordId": rec.ID, "data": rec.Data},
		Timestamp: time.Now(),
	}
}
