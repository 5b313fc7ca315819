package telemetry

import (
	"context"
	"time"
)

// Severity grades an alert.
type Severity string

// Alert severities, lowest first.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert kinds raised by the core itself.
const (
	AlertDataValidation = "data_validation"
	AlertDataLoss       = "data_loss"
)

// Alert is a system-raised condition that operators should see.
type Alert struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	DeviceID  string         `json:"deviceId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AlertPublisher delivers alerts to operators (hub ALERTS channel, MQTT, ...).
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert Alert) error
}

// AlertPublisherFunc adapts a function to AlertPublisher.
type AlertPublisherFunc func(ctx context.Context, alert Alert) error

// PublishAlert calls f.
func (f AlertPublisherFunc) PublishAlert(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

// MultiAlertPublisher sends each alert to every publisher and returns the
// first error after all have been tried.
type MultiAlertPublisher []AlertPublisher

// PublishAlert fans the alert out.
func (m MultiAlertPublisher) PublishAlert(ctx context.Context, alert Alert) error {
	var first error
	for _, p := range m {
		if err := p.PublishAlert(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
