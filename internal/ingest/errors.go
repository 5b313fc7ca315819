package ingest

import "errors"

var (
	// ErrPersistFailed is returned when a batch could not be stored after all retries.
	ErrPersistFailed = errors.New("ingest: persist failed")

	// ErrFlushInProgress is returned when a flush is requested while one is running.
	ErrFlushInProgress = errors.New("ingest: flush already in progress")

	// ErrInvalidPayload is returned when an ingress message cannot be decoded.
	ErrInvalidPayload = errors.New("ingest: invalid payload")
)
