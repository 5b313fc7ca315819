package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "graylogic"

// Metrics holds every Prometheus collector the telemetry core records to.
//
// A Metrics value works whether or not it has been registered; components
// built without one create their own unregistered instance so tests never
// touch a shared registry.
type Metrics struct {
	// Validation
	TelemetryValidated *prometheus.CounterVec
	TelemetryWarnings  *prometheus.CounterVec

	// Ingestion buffer
	IngestFlushes    *prometheus.CounterVec
	IngestRecords    *prometheus.CounterVec
	IngestBufferSize *prometheus.GaugeVec

	// Stream pipeline
	PipelineQueueDepth prometheus.Gauge
	PipelineRecords    *prometheus.CounterVec
	ProcessorRuns      *prometheus.CounterVec
	ProcessorDuration  *prometheus.HistogramVec
	OutputDeliveries   *prometheus.CounterVec

	// Channel hub
	HubConnections *prometheus.GaugeVec
	HubMessages    *prometheus.CounterVec
	HubRejections  *prometheus.CounterVec

	// Notifications
	NotificationsSent *prometheus.CounterVec
	DeliveryAttempts  *prometheus.CounterVec
	DeliveryDuration  *prometheus.HistogramVec
	RuleTriggers      *prometheus.CounterVec

	// HTTP API
	HTTPRequests *prometheus.CounterVec
}

// New creates a Metrics with all collectors initialised but not registered.
func New() *Metrics {
	return &Metrics{
		TelemetryValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "telemetry", Name: "validated_total",
			Help: "Telemetry records validated, by record type and result (valid|invalid)",
		}, []string{"type", "result"}),
		TelemetryWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "telemetry", Name: "warnings_total",
			Help: "Validation warnings raised on accepted records",
		}, []string{"type"}),

		IngestFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "flushes_total",
			Help: "Buffer flushes by record type and result (success|failed|skipped)",
		}, []string{"type", "result"}),
		IngestRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "records_total",
			Help: "Records leaving the buffer by type and result (persisted|lost)",
		}, []string{"type", "result"}),
		IngestBufferSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "buffer_size",
			Help: "Records currently buffered per type",
		}, []string{"type"}),

		PipelineQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "queue_depth",
			Help: "Records waiting in the pipeline queue",
		}),
		PipelineRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "records_total",
			Help: "Records leaving the pipeline by terminal status",
		}, []string{"status"}),
		ProcessorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "processor_runs_total",
			Help: "Processor invocations by processor and result",
		}, []string{"processor", "result"}),
		ProcessorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "processor_duration_seconds",
			Help:    "Processor latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"processor"}),
		OutputDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "output_deliveries_total",
			Help: "Output dispatches by output type and result",
		}, []string{"output", "result"}),

		HubConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hub", Name: "connections",
			Help: "Open hub connections by state",
		}, []string{"state"}),
		HubMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "messages_total",
			Help: "Messages delivered to subscribers per channel",
		}, []string{"channel"}),
		HubRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "rejections_total",
			Help: "Rejected hub operations by reason",
		}, []string{"reason"}),

		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "notifications_total",
			Help: "Notifications by final status",
		}, []string{"status"}),
		DeliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "delivery_attempts_total",
			Help: "Channel delivery attempts by channel and status",
		}, []string{"channel", "status"}),
		DeliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "notify", Name: "delivery_duration_seconds",
			Help:    "Channel delivery latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
		RuleTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "rule_triggers_total",
			Help: "Notification rule triggers",
		}, []string{"rule"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api", Name: "requests_total",
			Help: "HTTP requests by method, route pattern and status class",
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TelemetryValidated, m.TelemetryWarnings,
		m.IngestFlushes, m.IngestRecords, m.IngestBufferSize,
		m.PipelineQueueDepth, m.PipelineRecords, m.ProcessorRuns, m.ProcessorDuration, m.OutputDeliveries,
		m.HubConnections, m.HubMessages, m.HubRejections,
		m.NotificationsSent, m.DeliveryAttempts, m.DeliveryDuration, m.RuleTriggers,
		m.HTTPRequests,
	}
}
