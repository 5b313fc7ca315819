package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.rateLimitMiddleware)

	// Prometheus scrape endpoint (no auth, scraped from the local network)
	if s.metricsH != nil {
		r.Handle("/metrics", s.metricsH)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Hub WebSocket (auth via token query parameter or auth envelope)
		r.Handle("/ws", &hub.WebSocketHandler{
			Hub:            s.hub,
			MaxMessageSize: int64(s.hubCfg.MaxMessageSize),
			Logger:         s.logger.Component("hub"),
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Telemetry ingress and latest values
			r.Route("/telemetry", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDeviceConnect)).Post("/", s.handleIngestTelemetry)
				r.With(s.requirePermission(auth.PermReadEnergy)).Get("/latest/{deviceId}", s.handleLatestTelemetry)
			})

			// Operational views
			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermAdminMonitor))
				r.Get("/system", s.handleSystemMetrics)
				r.Get("/ingest/stats", s.handleIngestStats)
				r.Get("/hub/connections", s.handleListConnections)
				r.Get("/audit", s.handleListAuditLogs)

				r.Route("/pipeline", func(r chi.Router) {
					r.Get("/stats", s.handlePipelineStats)
					r.Get("/processors", s.handleListProcessors)
					r.Patch("/processors/{id}", s.handleSetProcessorActive)
				})
			})

			r.Get("/channels", s.handleListChannels)

			// Notifications
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", s.handleInbox)
				r.Post("/", s.handleSendNotification)
				r.With(s.requirePermission(auth.PermAdminMonitor)).Post("/batch", s.handleSendBatch)
				r.With(s.requirePermission(auth.PermAdminMonitor)).Get("/analytics", s.handleNotificationAnalytics)
				r.Get("/templates", s.handleListTemplates)
				r.Get("/{id}", s.handleGetNotification)
				r.Post("/{id}/read", s.handleMarkRead)
			})

			// Notification rules
			r.Route("/rules", func(r chi.Router) {
				r.Get("/", s.handleListRules)
				r.Post("/", s.handleCreateRule)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRule)
					r.Put("/", s.handleUpdateRule)
					r.Delete("/", s.handleDeleteRule)
				})
			})

			// Delivery preferences of the caller (or ?userId= for admins)
			r.Get("/preferences", s.handleGetPreferences)
			r.Put("/preferences", s.handleSetPreferences)

			// Device directory (enrichment source)
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/{id}", s.handleGetDevice)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermAdminMonitor))
					r.Post("/", s.handleCreateDevice)
					r.Put("/{id}", s.handleUpdateDevice)
					r.Delete("/{id}", s.handleDeleteDevice)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
//
// Each registered dependency check runs against the request context; any
// failure turns the response into 503 with the failing component listed.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]string, len(s.healthChecks))
	for name, hc := range s.healthChecks {
		if err := hc.HealthCheck(r.Context()); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     state,
		"version":    s.version,
		"components": components,
	})
}
