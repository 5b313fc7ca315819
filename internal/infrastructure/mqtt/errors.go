package mqtt

import "errors"

// Sentinel errors for broker operations. Callers match them with errors.Is;
// the wrapped text carries the broker or encoding detail.
var (
	// ErrNotConnected means the client is offline (never connected, or
	// waiting on auto-reconnect).
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps the initial connect failure at startup.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed covers stream re-publish, push delivery and alert
	// topics, including payloads that fail to encode.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrPayloadTooLarge is a publish failure for payloads over maxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrSubscribeFailed wraps a rejected telemetry subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps a rejected unsubscribe.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
