package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// mockDynamo records BatchWriteItem calls and can leave items unprocessed.
type mockDynamo struct {
	dynamodbiface.DynamoDBAPI

	calls           []int
	unprocessedOnce int
	err             error
}

func (m *mockDynamo) BatchWriteItemWithContext(_ aws.Context, in *dynamodb.BatchWriteItemInput, _ ...request.Option) (*dynamodb.BatchWriteItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	var reqs []*dynamodb.WriteRequest
	for _, r := range in.RequestItems {
		reqs = append(reqs, r...)
	}
	m.calls = append(m.calls, len(reqs))

	out := &dynamodb.BatchWriteItemOutput{}
	if m.unprocessedOnce > 0 && m.unprocessedOnce <= len(reqs) {
		out.UnprocessedItems = map[string][]*dynamodb.WriteRequest{"telemetry": reqs[:m.unprocessedOnce]}
		m.unprocessedOnce = 0
	}
	return out, nil
}

func items(n int) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = Item{"id": {S: aws.String("r")}}
	}
	return out
}

func TestNewWithAPI_RequiresTable(t *testing.T) {
	if _, err := NewWithAPI(&mockDynamo{}, ""); !errors.Is(err, ErrNoTable) {
		t.Errorf("error = %v, want ErrNoTable", err)
	}
}

func TestBatchPut_Chunks(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  []int
	}{
		{"empty", 0, nil},
		{"single chunk", 10, []int{10}},
		{"exact chunk", 25, []int{25}},
		{"spills over", 60, []int{25, 25, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockDynamo{}
			c, _ := NewWithAPI(m, "telemetry")
			if err := c.BatchPut(context.Background(), items(tt.count)); err != nil {
				t.Fatalf("BatchPut() error = %v", err)
			}
			if len(m.calls) != len(tt.want) {
				t.Fatalf("calls = %v, want %v", m.calls, tt.want)
			}
			for i := range tt.want {
				if m.calls[i] != tt.want[i] {
					t.Errorf("call %d size = %d, want %d", i, m.calls[i], tt.want[i])
				}
			}
		})
	}
}

func TestBatchPut_ResubmitsUnprocessed(t *testing.T) {
	m := &mockDynamo{unprocessedOnce: 3}
	c, _ := NewWithAPI(m, "telemetry")

	if err := c.BatchPut(context.Background(), items(5)); err != nil {
		t.Fatalf("BatchPut() error = %v", err)
	}
	if len(m.calls) != 2 || m.calls[1] != 3 {
		t.Errorf("calls = %v, want [5 3]", m.calls)
	}
}

func TestBatchPut_Error(t *testing.T) {
	c, _ := NewWithAPI(&mockDynamo{err: errors.New("throttled")}, "telemetry")
	if err := c.BatchPut(context.Background(), items(1)); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("error = %v, want ErrWriteFailed", err)
	}
}
