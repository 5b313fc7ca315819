// Package pipeline runs validated telemetry through an ordered set of
// processors and routes the result to outputs.
//
// For each record the pipeline selects the active processors whose filters
// all match, orders them by priority (ties broken by processor ID) and
// applies them one after another, each seeing the previous one's output.
// Every processor works on a copy, so a failed or timed-out processor never
// leaves a half-applied change behind.
//
// Error policy is set per pipeline:
//
//	stop      the record is marked failed and remaining processors are skipped
//	continue  the failing processor's output is discarded and the next one runs
//	retry     the processor is re-run up to RetryAttempts times, then stop applies
//
// A validate transformation that evaluates false attaches its message to
// the record. Under continue that soft error is kept and processing goes on;
// under stop and retry it fails the processor like any other error.
//
// After processing the record is marked processed and dispatched
// concurrently to the union of the matched processors' outputs. A record
// is delivered when at least one output accepted it (or there were none).
//
// Records enter through Submit and wait in an in-memory queue that Run
// drains BatchSize records per BatchTimeout tick. The queue is unbounded;
// its depth is exported as a gauge and a warning is logged when it crosses
// QueueHighWater.
package pipeline
