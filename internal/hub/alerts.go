package hub

import (
	"context"

	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// AlertPublisher broadcasts operator alerts on the ALERTS channel.
// It satisfies telemetry.AlertPublisher.
type AlertPublisher struct {
	Hub *Hub
}

// PublishAlert sends a as an alert envelope. Having no subscribers is not an error.
func (p AlertPublisher) PublishAlert(_ context.Context, a telemetry.Alert) error {
	env := NewEnvelope(TypeAlert, ChannelAlerts, a)
	env.Priority = severityPriority(a.Severity)
	_, err := p.Hub.Publish(ChannelAlerts, env)
	return err
}

func severityPriority(s telemetry.Severity) Priority {
	switch s {
	case telemetry.SeverityCritical:
		return PriorityCritical
	case telemetry.SeverityHigh:
		return PriorityHigh
	case telemetry.SeverityLow:
		return PriorityLow
	}
	return PriorityNormal
}
