// Package telemetry defines the telemetry record model and the validator
// every record passes before it enters the ingestion buffer.
//
// A Record only exists in the validated state or later: the validator is the
// sole producer of Records from raw input, and the lifecycle methods on
// Record refuse to move it backwards or skip a step:
//
//	validated -> processed -> delivered | failed
//	validated -> failed
//
// Validation never short-circuits. All rule violations are collected into
// ValidationResult.Errors, and soft problems (power mismatch, clock skew)
// become Warnings that lower the record's quality score without rejecting it.
package telemetry
