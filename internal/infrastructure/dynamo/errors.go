package dynamo

import "errors"

var (
	// ErrNoTable is returned when the client is built without a table name.
	ErrNoTable = errors.New("dynamo: table name is required")

	// ErrWriteFailed is returned when a batch write fails.
	ErrWriteFailed = errors.New("dynamo: batch write failed")

	// ErrUnprocessed is returned when items remain unprocessed after all resubmits.
	ErrUnprocessed = errors.New("dynamo: items left unprocessed")
)
