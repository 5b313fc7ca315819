package telemetry

import "errors"

var (
	// ErrValidation is returned when a raw record fails validation.
	ErrValidation = errors.New("telemetry: validation failed")

	// ErrInvalidTransition is returned when a record status change would
	// skip or reverse a lifecycle step.
	ErrInvalidTransition = errors.New("telemetry: invalid status transition")
)
