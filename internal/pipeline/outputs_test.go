package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

type mockPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (m *mockPublisher) PublishJSON(topic string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	return m.err
}

type mockBroadcaster struct {
	channel string
	env     hub.Envelope
}

func (m *mockBroadcaster) Publish(channelID string, env hub.Envelope) (int, error) {
	m.channel = channelID
	m.env = env
	return 1, nil
}

type mockStore struct {
	batches [][]*telemetry.Record
}

func (m *mockStore) Persist(_ context.Context, batch []*telemetry.Record) error {
	m.batches = append(m.batches, batch)
	return nil
}

type captureAlerts struct {
	alerts []telemetry.Alert
}

func (c *captureAlerts) PublishAlert(_ context.Context, a telemetry.Alert) error {
	c.alerts = append(c.alerts, a)
	return nil
}

func TestStreamOutput(t *testing.T) {
	pub := &mockPublisher{}
	out := StreamOutput{Publisher: pub}

	if err := out.Deliver(context.Background(), Output{Type: OutputStream, Target: "energy-processed"}, energy(nil)); err != nil {
		t.Fatal(err)
	}
	if err := out.Deliver(context.Background(), Output{Type: OutputStream}, energy(nil)); err != nil {
		t.Fatal(err)
	}
	if pub.topics[0] != "graylogic/stream/energy-processed" || pub.topics[1] != "graylogic/stream/energy" {
		t.Errorf("topics = %v", pub.topics)
	}

	pub.err = errors.New("broker down")
	if err := out.Deliver(context.Background(), Output{Type: OutputStream}, energy(nil)); err == nil {
		t.Error("expected publish error")
	}
}

func TestPersistenceOutput(t *testing.T) {
	store := &mockStore{}
	if err := (PersistenceOutput{Store: store}).Deliver(context.Background(), Output{}, energy(nil)); err != nil {
		t.Fatal(err)
	}
	if len(store.batches) != 1 || len(store.batches[0]) != 1 {
		t.Errorf("batches = %v", store.batches)
	}
}

func TestWebSocketOutput(t *testing.T) {
	b := &mockBroadcaster{}
	out := WebSocketOutput{Hub: b}

	if err := out.Deliver(context.Background(), Output{Type: OutputWebSocket}, energy(nil)); err != nil {
		t.Fatal(err)
	}
	if b.channel != hub.ChannelEnergyData || b.env.Type != hub.TypeData {
		t.Errorf("channel = %s type = %s", b.channel, b.env.Type)
	}

	alert := energy(nil)
	alert.Type = telemetry.TypeAlert
	if err := out.Deliver(context.Background(), Output{Type: OutputWebSocket, Target: hub.ChannelAlerts}, alert); err != nil {
		t.Fatal(err)
	}
	if b.channel != hub.ChannelAlerts || b.env.Type != hub.TypeAlert || b.env.Priority != hub.PriorityHigh {
		t.Errorf("alert envelope = %+v", b.env)
	}
}

func TestWebhookOutput(t *testing.T) {
	var got telemetry.Record
	var header string
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Graylogic-Record")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ok.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	out := NewWebhookOutput(time.Second)
	rec := energy(nil)

	if err := out.Deliver(context.Background(), Output{Type: OutputWebhook, Target: ok.URL}, rec); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got.DeviceID != "meter-1" || header != "rec-1" {
		t.Errorf("received device = %q header = %q", got.DeviceID, header)
	}

	if err := out.Deliver(context.Background(), Output{Type: OutputWebhook, Target: failing.URL}, rec); err == nil {
		t.Error("expected error for 502")
	}
	if err := out.Deliver(context.Background(), Output{Type: OutputWebhook}, rec); err == nil {
		t.Error("expected error for missing target")
	}
}

func TestAlertFromRecord(t *testing.T) {
	tests := []struct {
		name         string
		out          Output
		data         map[string]any
		wantKind     string
		wantSeverity telemetry.Severity
		wantMessage  string
	}{
		{
			name:         "defaults",
			wantKind:     "telemetry_alert",
			wantSeverity: telemetry.SeverityMedium,
			wantMessage:  "energy alert from meter-1",
		},
		{
			name:         "record severity wins",
			out:          Output{Target: "overvoltage", Severity: "low"},
			data:         map[string]any{"severity": "critical", "summary": "Voltage 260V"},
			wantKind:     "overvoltage",
			wantSeverity: telemetry.SeverityCritical,
			wantMessage:  "Voltage 260V",
		},
		{
			name:         "output severity and message field",
			out:          Output{Severity: "high"},
			data:         map[string]any{"message": "door forced"},
			wantKind:     "telemetry_alert",
			wantSeverity: telemetry.SeverityHigh,
			wantMessage:  "door forced",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AlertFromRecord(tt.out, energy(tt.data))
			if a.Kind != tt.wantKind || a.Severity != tt.wantSeverity || a.Message != tt.wantMessage {
				t.Errorf("alert = %+v", a)
			}
			if a.DeviceID != "meter-1" || a.ID == "" {
				t.Errorf("alert identity = %q/%q", a.DeviceID, a.ID)
			}
		})
	}

	alerts := &captureAlerts{}
	if err := (AlertOutput{Alerts: alerts}).Deliver(context.Background(), Output{}, energy(nil)); err != nil {
		t.Fatal(err)
	}
	if len(alerts.alerts) != 1 {
		t.Errorf("alerts = %d", len(alerts.alerts))
	}
}

func TestCache(t *testing.T) {
	c := NewCache()
	ctx := context.Background()

	newer := energy(map[string]any{"consumption": 600.0})
	newer.Timestamp += 1000
	older := energy(nil)

	_ = c.Deliver(ctx, Output{}, newer)
	_ = c.Deliver(ctx, Output{}, older)

	got, ok := c.Get("meter-1", telemetry.TypeEnergy)
	if !ok || got.Data["consumption"] != 600.0 {
		t.Errorf("Get() = %v, %v; older reading replaced newer", got, ok)
	}

	dev := energy(nil)
	dev.Type = telemetry.TypeDevice
	_ = c.Deliver(ctx, Output{}, dev)

	if c.Len() != 2 || len(c.Device("meter-1")) != 2 {
		t.Errorf("Len = %d Device = %d", c.Len(), len(c.Device("meter-1")))
	}
	if _, ok := c.Get("meter-2", telemetry.TypeEnergy); ok {
		t.Error("unexpected entry for meter-2")
	}

	// Cached copies are isolated from the caller.
	got.Data["consumption"] = 0.0
	again, _ := c.Get("meter-1", telemetry.TypeEnergy)
	if again.Data["consumption"] != 600.0 {
		t.Error("cache returned shared record")
	}
}
