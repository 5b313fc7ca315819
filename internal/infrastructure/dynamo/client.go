package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// MaxBatchItems is the BatchWriteItem limit per request.
const MaxBatchItems = 25

// maxUnprocessedResubmits bounds how often unprocessed items are resent.
const maxUnprocessedResubmits = 3

// Item is one DynamoDB item in attribute-value form.
type Item = map[string]*dynamodb.AttributeValue

// Client writes items to a single DynamoDB table.
type Client struct {
	api   dynamodbiface.DynamoDBAPI
	table string
}

// New creates a client for table using the given AWS session.
func New(sess *session.Session, table string) (*Client, error) {
	return NewWithAPI(dynamodb.New(sess), table)
}

// NewWithAPI creates a client over an existing DynamoDB API implementation.
func NewWithAPI(api dynamodbiface.DynamoDBAPI, table string) (*Client, error) {
	if table == "" {
		return nil, ErrNoTable
	}
	return &Client{api: api, table: table}, nil
}

// Table returns the target table name.
func (c *Client) Table() string {
	return c.table
}

// BatchPut writes items in chunks of MaxBatchItems.
//
// Parameters:
//   - ctx: Context for cancellation
//   - items: Items to put
//
// Returns:
//   - error: ErrWriteFailed or ErrUnprocessed wrapped with the cause
func (c *Client) BatchPut(ctx context.Context, items []Item) error {
	for start := 0; start < len(items); start += MaxBatchItems {
		end := min(start+MaxBatchItems, len(items))
		if err := c.writeChunk(ctx, items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) writeChunk(ctx context.Context, items []Item) error {
	requests := make([]*dynamodb.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, &dynamodb.WriteRequest{
			PutRequest: &dynamodb.PutRequest{Item: item},
		})
	}

	pending := map[string][]*dynamodb.WriteRequest{c.table: requests}
	for attempt := 0; attempt <= maxUnprocessedResubmits; attempt++ {
		out, err := c.api.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
		if len(out.UnprocessedItems) == 0 || len(out.UnprocessedItems[c.table]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}

	return fmt.Errorf("%w: %d items", ErrUnprocessed, len(pending[c.table]))
}

// HealthCheck verifies the table exists and is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.api.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.table),
	})
	if err != nil {
		return fmt.Errorf("describing table %s: %w", c.table, err)
	}
	return nil
}
