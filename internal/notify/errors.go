package notify

import "errors"

var (
	// ErrInvalidRequest is returned for a request missing its user or content.
	ErrInvalidRequest = errors.New("notify: invalid request")

	// ErrTemplate is returned when a template is unknown or a variable it
	// references was not supplied. Nothing is dispatched.
	ErrTemplate = errors.New("notify: template error")

	// ErrDelivery marks a failed channel attempt in its DeliveryResult.
	ErrDelivery = errors.New("notify: delivery failed")

	// ErrNotificationNotFound is returned when a notification does not exist.
	ErrNotificationNotFound = errors.New("notify: notification not found")

	// ErrRuleNotFound is returned when a rule does not exist.
	ErrRuleNotFound = errors.New("notify: rule not found")

	// ErrInvalidRule is returned when a rule fails validation.
	ErrInvalidRule = errors.New("notify: invalid rule")
)
