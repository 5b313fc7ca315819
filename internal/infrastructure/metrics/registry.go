package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private Prometheus registry with the core metrics and
// Go runtime collectors registered.
type Registry struct {
	prom    *prometheus.Registry
	Metrics *Metrics
}

// NewRegistry creates a registry and registers m (or a fresh Metrics if nil).
//
// Returns:
//   - *Registry: Registry ready to serve /metrics
//   - error: If a collector fails to register
func NewRegistry(m *Metrics) (*Registry, error) {
	if m == nil {
		m = New()
	}

	prom := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		if err := prom.Register(c); err != nil {
			return nil, fmt.Errorf("registering metric collector: %w", err)
		}
	}
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{prom: prom, Metrics: m}, nil
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// Handler returns the HTTP handler serving the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}
