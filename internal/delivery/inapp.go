package delivery

import (
	"context"

	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
)

// UserSender pushes an envelope to every live connection of a user.
// Satisfied by *hub.Hub.
type UserSender interface {
	SendToUser(userID string, env hub.Envelope) int
}

// HubInApp delivers in-app notifications through the channel hub. The
// notification itself is already stored in the user's inbox, so a user with
// no live connection still gets it on next fetch and the receipt reports
// sent rather than failed.
type HubInApp struct {
	Hub UserSender
}

// Deliver pushes msg to the user's connections.
func (h HubInApp) Deliver(_ context.Context, msg InAppMessage) (InAppReceipt, error) {
	if h.Hub == nil {
		return InAppReceipt{ID: msg.NotificationID, Status: StatusFailed}, ErrNotConfigured
	}

	env := hub.NewEnvelope(hub.TypeEvent, "", msg)
	env.Priority = envelopePriority(msg.Priority)
	n := h.Hub.SendToUser(msg.UserID, env)

	status := StatusSent
	if n > 0 {
		status = StatusDelivered
	}
	return InAppReceipt{ID: msg.NotificationID, Status: status, Recipients: n}, nil
}

func envelopePriority(p string) hub.Priority {
	switch p {
	case "urgent", "critical":
		return hub.PriorityCritical
	case "high":
		return hub.PriorityHigh
	case "low":
		return hub.PriorityLow
	}
	return hub.PriorityNormal
}
