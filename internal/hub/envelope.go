package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType is the envelope type field.
type MessageType string

// Envelope types.
const (
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypeData        MessageType = "data"
	TypeEvent       MessageType = "event"
	TypeAlert       MessageType = "alert"
	TypeCommand     MessageType = "command"
	TypeHeartbeat   MessageType = "heartbeat"
	TypeAuth        MessageType = "auth"
	TypeDisconnect  MessageType = "disconnect"
	TypeResponse    MessageType = "response"
	TypeError       MessageType = "error"
)

// Priority orders envelopes for clients that care.
type Priority string

// Envelope priorities.
const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Metadata correlates requests and responses.
type Metadata struct {
	CorrelationID string `json:"correlationId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
}

// Envelope is the pub/sub wire message.
type Envelope struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Payload   any         `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Priority  Priority    `json:"priority,omitempty"`
	Metadata  *Metadata   `json:"metadata,omitempty"`
}

// NewEnvelope creates an envelope with a fresh ID, the current time and
// normal priority.
func NewEnvelope(t MessageType, channel string, payload any) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      t,
		Channel:   channel,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Priority:  PriorityNormal,
	}
}

// ParseEnvelope decodes an inbound message.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	return env, nil
}

// payloadString reads a string field from a decoded object payload.
func (e Envelope) payloadString(key string) string {
	m, ok := e.Payload.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// reply builds a response or error envelope correlated to e.
func (e Envelope) reply(t MessageType, payload any) Envelope {
	r := NewEnvelope(t, e.Channel, payload)
	r.Metadata = &Metadata{CorrelationID: e.ID}
	if e.Metadata != nil {
		r.Metadata.RequestID = e.Metadata.RequestID
	}
	return r
}
