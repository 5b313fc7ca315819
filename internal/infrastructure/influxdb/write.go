package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is one time-series point to be written.
// Tags should be low cardinality (device ID, record type); values go in Fields.
type Measurement struct {
	Name   string
	Tags   map[string]string
	Fields map[string]any
	Time   time.Time
}

// WriteMeasurements writes measurements synchronously, in chunks of the
// configured batch size. It returns the first chunk error; chunks written
// before the failure stay written.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - ms: Measurements to write; entries without fields are skipped
//
// Returns:
//   - error: ErrNotConnected, or ErrWriteFailed wrapping the server error
func (c *Client) WriteMeasurements(ctx context.Context, ms []Measurement) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	points := toPoints(ms)
	for start := 0; start < len(points); start += c.batchSize {
		end := min(start+c.batchSize, len(points))
		if err := c.writeAPI.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
	}
	return nil
}

// toPoints converts measurements to line-protocol points.
// InfluxDB rejects points without fields, so those are dropped here.
func toPoints(ms []Measurement) []*write.Point {
	points := make([]*write.Point, 0, len(ms))
	for _, m := range ms {
		if len(m.Fields) == 0 {
			continue
		}
		points = append(points, write.NewPoint(m.Name, m.Tags, m.Fields, m.Time))
	}
	return points
}
