// Package ingest batches validated telemetry and hands it to storage and
// the stream pipeline.
//
// Records are buffered per type and flushed when a buffer reaches
// BatchSize or when BatchTimeout elapses. At most one flush per type runs at
// a time; a flush requested while one is in flight is skipped, and records
// that arrive meanwhile wait for the next flush. A buffer is trimmed only
// after the persist call has resolved: success, or failure after
// RetryAttempts retries, at which point the batch is reported lost.
//
// Every flushed batch is forwarded to the pipeline whether or not storage
// accepted it; the real-time path does not depend on persistence.
package ingest
