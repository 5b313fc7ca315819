// Package api implements the HTTP surface of the telemetry core.
//
// This package provides:
//   - Telemetry ingress (single record or array) into the ingestion buffer
//   - Notification dispatch, batches, inbox, read receipts and analytics
//   - Notification rule and preference management
//   - Device directory CRUD used for pipeline enrichment
//   - Operational views: health, pipeline and ingestion stats, hub channels
//   - The hub WebSocket endpoint and the Prometheus scrape endpoint
//   - Middleware stack (request ID, logging, recovery, CORS, rate limit, JWT)
//
// # Security
//
// Every route except /api/v1/health, /metrics and /api/v1/ws requires a
// bearer JWT. Routes are gated by the permission set of the token's role;
// admin and system tokens can act on behalf of any user.
package api
