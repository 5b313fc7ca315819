package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/ingest"
	"github.com/nerrad567/gray-logic-telemetry/internal/pipeline"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	Hub           HubMetrics      `json:"hub"`
	Ingest        ingest.Stats    `json:"ingest"`
	Pipeline      *pipeline.Stats `json:"pipeline,omitempty"`
	Notifications NotifyMetrics   `json:"notifications"`
	Devices       DeviceMetrics   `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// HubMetrics contains channel hub statistics.
type HubMetrics struct {
	Connections int `json:"connections"`
	Channels    int `json:"channels"`
}

// NotifyMetrics summarises notification delivery since start.
type NotifyMetrics struct {
	Sent         int64   `json:"sent"`
	Delivered    int64   `json:"delivered"`
	Failed       int64   `json:"failed"`
	DeliveryRate float64 `json:"delivery_rate"`
}

// DeviceMetrics contains device directory statistics.
type DeviceMetrics struct {
	Total int `json:"total"`
}

// handleSystemMetrics returns a JSON snapshot of every component.
// Prometheus series are served separately on /metrics.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Hub: HubMetrics{
			Connections: s.hub.ConnectionCount(),
			Channels:    len(s.hub.Channels()),
		},
		Ingest: s.ingestor.Buffer().Stats(),
	}

	if s.pipeline != nil {
		ps := s.pipeline.Stats()
		m.Pipeline = &ps
	}

	total := s.notifier.Analytics().Report().Total
	m.Notifications = NotifyMetrics{
		Sent:         total.Sent,
		Delivered:    total.Delivered,
		Failed:       total.Failed,
		DeliveryRate: total.DeliveryRate,
	}

	if s.devices != nil {
		m.Devices.Total = s.devices.GetDeviceCount()
	}

	writeJSON(w, http.StatusOK, m)
}
