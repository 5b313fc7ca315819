package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRegistry_ExposesCoreMetrics(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	reg.Metrics.TelemetryValidated.WithLabelValues("energy", "valid").Inc()
	reg.Metrics.PipelineQueueDepth.Set(7)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`graylogic_telemetry_validated_total{result="valid",type="energy"} 1`,
		"graylogic_pipeline_queue_depth 7",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewRegistry_DuplicateMetricsRejected(t *testing.T) {
	m := New()
	if _, err := NewRegistry(m); err != nil {
		t.Fatalf("first NewRegistry() error = %v", err)
	}
	// A separate registry accepts the same collectors.
	if _, err := NewRegistry(m); err != nil {
		t.Fatalf("second registry should be independent, got %v", err)
	}
}

func TestMetricsCountBeforeRegistration(t *testing.T) {
	m := New()
	m.DeliveryAttempts.WithLabelValues("sms", "failed").Inc()
	m.DeliveryAttempts.WithLabelValues("sms", "failed").Inc()

	reg, err := NewRegistry(m)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, fam := range families {
		if fam.GetName() != "graylogic_notify_delivery_attempts_total" {
			continue
		}
		if got := fam.GetMetric()[0].GetCounter().GetValue(); got != 2 {
			t.Errorf("delivery attempts = %v, want 2", got)
		}
		return
	}
	t.Error("delivery attempts family not gathered")
}
