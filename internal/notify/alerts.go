package notify

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// AlertNotifier turns telemetry alerts into notifications for a fixed set
// of recipients. It satisfies telemetry.AlertPublisher.
type AlertNotifier struct {
	Orchestrator *Orchestrator
	Recipients   []string
	// MinSeverity drops alerts below it. Empty means every alert.
	MinSeverity telemetry.Severity
}

var severityRank = map[telemetry.Severity]int{
	telemetry.SeverityLow:      1,
	telemetry.SeverityMedium:   2,
	telemetry.SeverityHigh:     3,
	telemetry.SeverityCritical: 4,
}

// PublishAlert notifies every recipient and returns the joined errors of
// requests that could not be dispatched.
func (n AlertNotifier) PublishAlert(ctx context.Context, a telemetry.Alert) error {
	if n.MinSeverity != "" && severityRank[a.Severity] < severityRank[n.MinSeverity] {
		return nil
	}

	data := map[string]any{"alertId": a.ID, "kind": a.Kind}
	if a.DeviceID != "" {
		data["deviceId"] = a.DeviceID
	}

	var errs []error
	for _, user := range n.Recipients {
		_, err := n.Orchestrator.Send(ctx, Request{
			UserID:            user,
			Priority:          alertPriority(a.Severity),
			TemplateID:        "system_alert",
			TemplateVariables: map[string]any{"kind": a.Kind, "message": a.Message},
			Data:              data,
			Source:            SourceAlert,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func alertPriority(s telemetry.Severity) Priority {
	switch s {
	case telemetry.SeverityCritical:
		return PriorityUrgent
	case telemetry.SeverityHigh:
		return PriorityHigh
	case telemetry.SeverityLow:
		return PriorityLow
	}
	return PriorityNormal
}
