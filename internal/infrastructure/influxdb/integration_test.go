//go:build integration

package influxdb

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

// Requires a local InfluxDB 2.x at 127.0.0.1:8086 with the dev token.
func TestIntegration_WriteMeasurements(t *testing.T) {
	ctx := context.Background()
	client, err := Connect(ctx, config.InfluxDBConfig{
		Enabled:   true,
		URL:       "http://127.0.0.1:8086",
		Token:     "graylogic-dev-token",
		Org:       "graylogic",
		Bucket:    "telemetry",
		BatchSize: 2,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	ms := make([]Measurement, 5)
	for i := range ms {
		ms[i] = Measurement{
			Name:   "energy",
			Tags:   map[string]string{"device_id": "meter-int"},
			Fields: map[string]any{"consumption": float64(i)},
			Time:   time.Now().Add(time.Duration(i) * time.Millisecond),
		}
	}
	if err := client.WriteMeasurements(ctx, ms); err != nil {
		t.Fatalf("WriteMeasurements() error = %v", err)
	}
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
