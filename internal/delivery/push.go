package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
)

// JSONPublisher publishes a JSON document to an MQTT topic.
// Satisfied by *mqtt.Client.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
}

// PushMessage is the document published on a user's notification topic.
type PushMessage struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	Priority  string         `json:"priority"`
	Category  string         `json:"category"`
	Timestamp time.Time      `json:"timestamp"`
}

// MQTTPush delivers push notifications over MQTT. The broker hands the
// message to subscribed UI clients, so a successful publish reports sent.
type MQTTPush struct {
	Publisher JSONPublisher
	Now       func() time.Time
}

// NewMQTTPush creates a push adapter over p.
func NewMQTTPush(p JSONPublisher) *MQTTPush {
	return &MQTTPush{Publisher: p, Now: time.Now}
}

// SendNotification publishes to graylogic/ui/{userID}/notification.
func (p *MQTTPush) SendNotification(_ context.Context, userID, title, body string, data map[string]any, priority, category string) (PushReceipt, error) {
	if p.Publisher == nil {
		return PushReceipt{Status: StatusFailed}, ErrNotConfigured
	}
	if userID == "" {
		return PushReceipt{Status: StatusFailed}, fmt.Errorf("%w: empty user id", ErrInvalidRecipient)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	msg := PushMessage{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		Data:      data,
		Priority:  priority,
		Category:  category,
		Timestamp: now().UTC(),
	}
	if err := p.Publisher.PublishJSON((mqtt.Topics{}).UINotification(userID), msg); err != nil {
		return PushReceipt{ID: msg.ID, Status: StatusFailed}, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return PushReceipt{ID: msg.ID, Status: StatusSent}, nil
}
