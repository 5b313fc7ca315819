package telemetry

import (
	"fmt"
	"time"
)

// RecordType classifies a telemetry record.
type RecordType string

// Record types accepted at ingress.
const (
	TypeEnergy RecordType = "energy"
	TypeDevice RecordType = "device"
	TypeSensor RecordType = "sensor"
	TypeAlert  RecordType = "alert"
)

// AllRecordTypes returns every accepted record type.
func AllRecordTypes() []RecordType {
	return []RecordType{TypeEnergy, TypeDevice, TypeSensor, TypeAlert}
}

// Status is a record's lifecycle position.
type Status string

// Record lifecycle states.
const (
	StatusValidated Status = "validated"
	StatusProcessed Status = "processed"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Quality carries the validator's assessment of an accepted record.
type Quality struct {
	Score       float64   `json:"score"`
	Warnings    []string  `json:"warnings,omitempty"`
	ValidatedAt time.Time `json:"validatedAt"`
}

// Record is one validated telemetry reading or status event.
type Record struct {
	ID          string         `json:"id"`
	DeviceID    string         `json:"deviceId"`
	Timestamp   int64          `json:"timestamp"` // unix milliseconds
	Type        RecordType     `json:"type"`
	Data        map[string]any `json:"data"`
	Quality     Quality        `json:"quality"`
	Status      Status         `json:"status"`
	Processed   bool           `json:"processed"`
	ProcessedAt *time.Time     `json:"processedAt,omitempty"`
	Errors      []string       `json:"errors,omitempty"`
	ReceivedAt  time.Time      `json:"receivedAt"`
}

// Time returns the record timestamp as a time.Time.
func (r *Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// AddError attaches a soft error to the record without changing its status.
func (r *Record) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// MarkProcessed moves a validated record to processed.
func (r *Record) MarkProcessed(at time.Time) error {
	if r.Status != StatusValidated {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusProcessed)
	}
	r.Status = StatusProcessed
	r.Processed = true
	r.ProcessedAt = &at
	return nil
}

// MarkDelivered moves a processed record to delivered.
func (r *Record) MarkDelivered() error {
	if r.Status != StatusProcessed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusDelivered)
	}
	r.Status = StatusDelivered
	return nil
}

// MarkFailed moves a validated or processed record to failed and records the reason.
func (r *Record) MarkFailed(reason string) error {
	if r.Status != StatusValidated && r.Status != StatusProcessed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusFailed)
	}
	r.Status = StatusFailed
	if reason != "" {
		r.Errors = append(r.Errors, reason)
	}
	return nil
}

// Fields returns a flat view of the record for condition and expression
// evaluation. Payload keys sit at the top level and are also reachable under
// "data.". The ingress envelope keys (deviceId, timestamp, type) win over
// payload keys of the same name. Lifecycle state lives under "record" so a
// device payload "status" is never shadowed by it.
func (r *Record) Fields() map[string]any {
	out := make(map[string]any, len(r.Data)+6)
	for k, v := range r.Data {
		out[k] = v
	}
	out["deviceId"] = r.DeviceID
	out["timestamp"] = r.Timestamp
	out["type"] = string(r.Type)
	out["data"] = r.Data
	out["quality"] = map[string]any{
		"score":    r.Quality.Score,
		"warnings": r.Quality.Warnings,
	}
	out["record"] = map[string]any{
		"id":        r.ID,
		"status":    string(r.Status),
		"processed": r.Processed,
	}
	return out
}

// Clone returns a deep copy safe to mutate independently.
func (r *Record) Clone() *Record {
	c := *r
	c.Data = cloneMap(r.Data)
	c.Quality.Warnings = append([]string(nil), r.Quality.Warnings...)
	c.Errors = append([]string(nil), r.Errors...)
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
