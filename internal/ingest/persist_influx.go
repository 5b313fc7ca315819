package ingest

import (
	"context"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// MeasurementWriter is the subset of the InfluxDB client used for persistence.
type MeasurementWriter interface {
	WriteMeasurements(ctx context.Context, ms []influxdb.Measurement) error
}

// InfluxPersister writes one point per record to the "telemetry" measurement.
// Device ID and record type become tags; scalar payload values become fields.
type InfluxPersister struct {
	writer MeasurementWriter
}

// NewInfluxPersister creates a persister over w.
func NewInfluxPersister(w MeasurementWriter) *InfluxPersister {
	return &InfluxPersister{writer: w}
}

// Persist converts and writes the batch.
func (p *InfluxPersister) Persist(ctx context.Context, batch []*telemetry.Record) error {
	ms := make([]influxdb.Measurement, 0, len(batch))
	for _, rec := range batch {
		ms = append(ms, toMeasurement(rec))
	}
	return p.writer.WriteMeasurements(ctx, ms)
}

func toMeasurement(rec *telemetry.Record) influxdb.Measurement {
	fields := map[string]any{"quality_score": rec.Quality.Score}
	for k, v := range rec.Data {
		switch v.(type) {
		case float64, bool, string:
			fields[k] = v
		}
	}
	return influxdb.Measurement{
		Name: "telemetry",
		Tags: map[string]string{
			"device_id": rec.DeviceID,
			"type":      string(rec.Type),
		},
		Fields: fields,
		Time:   rec.Time(),
	}
}
