package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/dynamo"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// ItemWriter is the subset of the DynamoDB client used for persistence.
type ItemWriter interface {
	BatchPut(ctx context.Context, items []dynamo.Item) error
}

// dynamoRecord is the DynamoDB item layout. DeviceID is the partition key
// and Timestamp the sort key.
type dynamoRecord struct {
	DeviceID     string         `dynamodbav:"DeviceId"`
	Timestamp    int64          `dynamodbav:"Timestamp"`
	RecordID     string         `dynamodbav:"RecordId"`
	Type         string         `dynamodbav:"Type"`
	Data         map[string]any `dynamodbav:"Data"`
	QualityScore float64        `dynamodbav:"QualityScore"`
	Warnings     []string       `dynamodbav:"Warnings,omitempty"`
	ReceivedAt   string         `dynamodbav:"ReceivedAt"`
}

// DynamoPersister archives records to a DynamoDB table.
type DynamoPersister struct {
	writer ItemWriter
}

// NewDynamoPersister creates a persister over w.
func NewDynamoPersister(w ItemWriter) *DynamoPersister {
	return &DynamoPersister{writer: w}
}

// Persist marshals the batch and writes it with BatchWriteItem.
func (p *DynamoPersister) Persist(ctx context.Context, batch []*telemetry.Record) error {
	items := make([]dynamo.Item, 0, len(batch))
	for _, rec := range batch {
		item, err := dynamodbattribute.MarshalMap(dynamoRecord{
			DeviceID:     rec.DeviceID,
			Timestamp:    rec.Timestamp,
			RecordID:     rec.ID,
			Type:         string(rec.Type),
			Data:         rec.Data,
			QualityScore: rec.Quality.Score,
			Warnings:     rec.Quality.Warnings,
			ReceivedAt:   rec.ReceivedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("marshalling record %s: %w", rec.ID, err)
		}
		items = append(items, item)
	}
	return p.writer.BatchPut(ctx, items)
}
