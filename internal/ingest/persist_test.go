package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/dynamo"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
	"github.com/nerrad567/gray-logic-telemetry/internal/testutil"
)

func TestSQLitePersister(t *testing.T) {
	db := testutil.OpenDB(t)
	p := NewSQLitePersister(db)
	ctx := context.Background()

	now := time.Now()
	batch := []*telemetry.Record{
		{
			ID: "r1", DeviceID: "meter-1", Type: telemetry.TypeEnergy, Timestamp: now.UnixMilli() - 1000,
			Data:       map[string]any{"voltage": 230.0},
			Quality:    telemetry.Quality{Score: 0.9, Warnings: []string{"power mismatch"}},
			ReceivedAt: now,
		},
		{
			ID: "r2", DeviceID: "meter-1", Type: telemetry.TypeEnergy, Timestamp: now.UnixMilli(),
			Data:       map[string]any{"voltage": 231.0},
			Quality:    telemetry.Quality{Score: 1},
			ReceivedAt: now,
		},
	}

	if err := p.Persist(ctx, batch); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	// Re-persisting after a retry must not duplicate rows.
	if err := p.Persist(ctx, batch); err != nil {
		t.Fatalf("second Persist() error = %v", err)
	}

	got, err := p.Recent(ctx, "meter-1", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() len = %d, want 2", len(got))
	}
	if got[0].ID != "r2" {
		t.Errorf("newest first: got %s", got[0].ID)
	}
	if got[1].Data["voltage"] != 230.0 || len(got[1].Quality.Warnings) != 1 {
		t.Errorf("round trip lost data: %+v", got[1])
	}
}

type mockInflux struct {
	written []influxdb.Measurement
	err     error
}

func (m *mockInflux) WriteMeasurements(_ context.Context, ms []influxdb.Measurement) error {
	m.written = append(m.written, ms...)
	return m.err
}

func TestInfluxPersister(t *testing.T) {
	w := &mockInflux{}
	p := NewInfluxPersister(w)

	rec := &telemetry.Record{
		DeviceID: "meter-2", Type: telemetry.TypeEnergy, Timestamp: 1700000000000,
		Data:    map[string]any{"voltage": 229.5, "online": true, "nested": map[string]any{"x": 1.0}},
		Quality: telemetry.Quality{Score: 0.8},
	}
	if err := p.Persist(context.Background(), []*telemetry.Record{rec}); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	if len(w.written) != 1 {
		t.Fatalf("written = %d", len(w.written))
	}
	m := w.written[0]
	if m.Name != "telemetry" || m.Tags["device_id"] != "meter-2" || m.Tags["type"] != "energy" {
		t.Errorf("measurement = %+v", m)
	}
	if m.Fields["voltage"] != 229.5 || m.Fields["online"] != true || m.Fields["quality_score"] != 0.8 {
		t.Errorf("fields = %v", m.Fields)
	}
	if _, ok := m.Fields["nested"]; ok {
		t.Error("nested values are not valid line-protocol fields")
	}
	if !m.Time.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("time = %v", m.Time)
	}
}

type mockItemWriter struct {
	items []dynamo.Item
}

func (m *mockItemWriter) BatchPut(_ context.Context, items []dynamo.Item) error {
	m.items = append(m.items, items...)
	return nil
}

func TestDynamoPersister(t *testing.T) {
	w := &mockItemWriter{}
	p := NewDynamoPersister(w)

	rec := &telemetry.Record{
		ID: "r9", DeviceID: "meter-3", Type: telemetry.TypeEnergy, Timestamp: 42,
		Data: map[string]any{"voltage": 230.0},
	}
	if err := p.Persist(context.Background(), []*telemetry.Record{rec}); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	if len(w.items) != 1 {
		t.Fatalf("items = %d", len(w.items))
	}
	item := w.items[0]
	if *item["DeviceId"].S != "meter-3" || *item["Timestamp"].N != "42" || *item["RecordId"].S != "r9" {
		t.Errorf("item keys = %v", item)
	}
	if *item["Data"].M["voltage"].N != "230" {
		t.Errorf("data = %v", item["Data"])
	}
}

func TestMultiPersister(t *testing.T) {
	ok := &mockPersister{}
	bad := &mockPersister{failN: -1}
	m := NewMultiPersister(
		NamedPersister{Name: "sqlite", Persister: ok},
		NamedPersister{Name: "influxdb", Persister: bad},
	)

	err := m.Persist(context.Background(), []*telemetry.Record{record(telemetry.TypeEnergy, "1")})
	if !errors.Is(err, errStorageDown) {
		t.Fatalf("error = %v, want errStorageDown", err)
	}
	if ok.stored() != 1 {
		t.Error("healthy backend skipped because a sibling failed")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d", m.Len())
	}
}
