package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// mockPersister records batches and can fail a set number of times or block.
type mockPersister struct {
	mu       sync.Mutex
	batches  [][]*telemetry.Record
	calls    int
	failN    int // fail the first failN calls; -1 fails forever
	entered  chan struct{}
	release  chan struct{}
	enterOne sync.Once
}

var errStorageDown = errors.New("storage down")

func (m *mockPersister) Persist(_ context.Context, batch []*telemetry.Record) error {
	if m.entered != nil {
		m.enterOne.Do(func() { close(m.entered) })
	}
	if m.release != nil {
		<-m.release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failN < 0 || m.calls <= m.failN {
		return errStorageDown
	}
	m.batches = append(m.batches, append([]*telemetry.Record(nil), batch...))
	return nil
}

func (m *mockPersister) stored() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func (m *mockPersister) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockForwarder struct {
	mu      sync.Mutex
	records []*telemetry.Record
}

func (f *mockForwarder) Submit(records ...*telemetry.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
}

func (f *mockForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type mockAlerts struct {
	mu     sync.Mutex
	alerts []telemetry.Alert
}

func (a *mockAlerts) PublishAlert(_ context.Context, alert telemetry.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

func (a *mockAlerts) kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.alerts))
	for i, al := range a.alerts {
		out[i] = al.Kind
	}
	return out
}

func record(t telemetry.RecordType, id string) *telemetry.Record {
	return &telemetry.Record{
		ID:       id,
		DeviceID: "dev-" + id,
		Type:     t,
		Status:   telemetry.StatusValidated,
		Data:     map[string]any{"value": 1.0},
	}
}
