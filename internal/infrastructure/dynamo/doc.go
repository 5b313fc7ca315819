// Package dynamo wraps the DynamoDB client used to archive telemetry.
//
// Writes go through BatchWriteItem in chunks of MaxBatchItems. Items the
// service reports as unprocessed are resubmitted a bounded number of times
// before the write is reported as failed.
package dynamo
