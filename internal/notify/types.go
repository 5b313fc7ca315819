package notify

import (
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/delivery"
)

// Channel is a delivery channel type.
type Channel string

// Delivery channels.
const (
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
)

// Priority grades a notification.
type Priority string

// Notification priorities.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Common categories. Categories are free-form; these are the ones the core raises.
const (
	CategoryDeviceAlert = "device_alert"
	CategoryEnergy      = "energy"
	CategorySystem      = "system"
	CategorySecurity    = "security"
)

// Status is the lifecycle state of a notification.
type Status string

// Notification statuses.
const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Sources recorded on events.
const (
	SourceAPI   = "api"
	SourceRule  = "rule"
	SourceAlert = "alert"
	SourceBatch = "batch"
)

// SystemUser scopes rules that apply to every user.
const SystemUser = "SYSTEM"

// Request is the notification dispatch input.
type Request struct {
	UserID            string         `json:"userId"`
	Category          string         `json:"category"`
	Priority          Priority       `json:"priority"`
	Title             string         `json:"title"`
	Message           string         `json:"message"`
	TemplateID        string         `json:"templateId,omitempty"`
	TemplateVariables map[string]any `json:"templateVariables,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
	Source            string         `json:"-"`
}

// DeliveryResult is the outcome of one channel attempt.
type DeliveryResult struct {
	Channel   Channel         `json:"channel"`
	Status    delivery.Status `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Error     string          `json:"error,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// Event is a notification and its resolved delivery state.
type Event struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Category    string           `json:"category"`
	Priority    Priority         `json:"priority"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Data        map[string]any   `json:"data,omitempty"`
	Channels    []Channel        `json:"channels"`
	Results     []DeliveryResult `json:"results"`
	Status      Status           `json:"status"`
	Source      string           `json:"source"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
	ReadAt      *time.Time       `json:"readAt,omitempty"`
}

// Fields flattens the event for rule condition evaluation.
func (e *Event) Fields() map[string]any {
	channels := make([]any, len(e.Channels))
	for i, c := range e.Channels {
		channels[i] = string(c)
	}
	fields := map[string]any{
		"id":       e.ID,
		"userId":   e.UserID,
		"category": e.Category,
		"priority": string(e.Priority),
		"title":    e.Title,
		"message":  e.Message,
		"status":   string(e.Status),
		"source":   e.Source,
		"channels": channels,
	}
	if e.Data != nil {
		fields["data"] = e.Data
	}
	return fields
}

// Preferences are a user's channel opt-ins. Push, SMS and email are opt-in;
// in-app is always on. A non-empty Categories list restricts the opt-in
// channels to those categories.
type Preferences struct {
	UserID       string    `json:"userId"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	PushEnabled  bool      `json:"pushEnabled"`
	SMSEnabled   bool      `json:"smsEnabled"`
	EmailEnabled bool      `json:"emailEnabled"`
	Categories   []string  `json:"categories,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// allowsCategory reports whether opt-in channels apply to category.
func (p Preferences) allowsCategory(category string) bool {
	if len(p.Categories) == 0 {
		return true
	}
	for _, c := range p.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Channels resolves the channel list for a notification in category.
// Order is fixed: push, sms, email, in_app.
func (p Preferences) Channels(category string) []Channel {
	var out []Channel
	if p.allowsCategory(category) {
		if p.PushEnabled {
			out = append(out, ChannelPush)
		}
		if p.SMSEnabled {
			out = append(out, ChannelSMS)
		}
		if p.EmailEnabled {
			out = append(out, ChannelEmail)
		}
	}
	return append(out, ChannelInApp)
}
