package delivery

import (
	"context"
	"errors"
	"time"
)

// Status is the outcome reported by an adapter.
type Status string

// Adapter statuses.
const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Succeeded reports whether s counts as a successful channel attempt.
func (s Status) Succeeded() bool {
	return s == StatusSent || s == StatusDelivered
}

var (
	// ErrInvalidRecipient is returned when the phone number or address is unusable.
	ErrInvalidRecipient = errors.New("delivery: invalid recipient")

	// ErrProvider is returned when the upstream provider rejects a message.
	ErrProvider = errors.New("delivery: provider error")

	// ErrNotConfigured is returned by adapters missing their client.
	ErrNotConfigured = errors.New("delivery: adapter not configured")
)

// PushReceipt is returned by PushSender.
type PushReceipt struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// SMSReceipt is returned by SMSSender.
type SMSReceipt struct {
	ID       string  `json:"id"`
	Status   Status  `json:"status"`
	Provider string  `json:"provider"`
	Cost     float64 `json:"cost"`
}

// EmailReceipt is returned by EmailSender.
type EmailReceipt struct {
	ID       string `json:"id"`
	Status   Status `json:"status"`
	Provider string `json:"provider"`
}

// InAppReceipt is returned by InAppSender. Recipients counts live connections
// that received the message.
type InAppReceipt struct {
	ID         string `json:"id"`
	Status     Status `json:"status"`
	Recipients int    `json:"recipients"`
}

// PushSender delivers push notifications to a user's UI clients.
type PushSender interface {
	SendNotification(ctx context.Context, userID, title, body string, data map[string]any, priority, category string) (PushReceipt, error)
}

// SMSSender delivers text messages.
type SMSSender interface {
	SendMessage(ctx context.Context, userID, phone, message, messageType, priority string) (SMSReceipt, error)
}

// EmailSender delivers email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (EmailReceipt, error)
}

// InAppMessage is the payload pushed to live hub connections.
type InAppMessage struct {
	NotificationID string         `json:"notificationId"`
	UserID         string         `json:"userId"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Category       string         `json:"category"`
	Priority       string         `json:"priority"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// InAppSender delivers in-app messages.
type InAppSender interface {
	Deliver(ctx context.Context, msg InAppMessage) (InAppReceipt, error)
}
