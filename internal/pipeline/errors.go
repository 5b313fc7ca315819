package pipeline

import "errors"

var (
	// ErrProcessor is returned when a processor's transformations fail.
	ErrProcessor = errors.New("pipeline: processor failed")

	// ErrProcessorTimeout is returned when a processor exceeds its timeout.
	ErrProcessorTimeout = errors.New("pipeline: processor timed out")

	// ErrProcessorNotFound is returned for an unknown processor ID.
	ErrProcessorNotFound = errors.New("pipeline: processor not found")

	// ErrProcessorExists is returned when adding a duplicate processor ID.
	ErrProcessorExists = errors.New("pipeline: processor already exists")

	// ErrInvalidProcessor is returned when a processor definition is malformed.
	ErrInvalidProcessor = errors.New("pipeline: invalid processor")

	// ErrNoOutputHandler is returned when no handler is registered for an output type.
	ErrNoOutputHandler = errors.New("pipeline: no handler for output type")

	// ErrInvalidDefinitions is returned when a definitions file fails schema validation.
	ErrInvalidDefinitions = errors.New("pipeline: invalid processor definitions")
)
