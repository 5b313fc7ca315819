// Package metrics defines the Prometheus metrics of the telemetry core and
// the registry that serves them on /metrics.
package metrics
