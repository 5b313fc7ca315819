// Package delivery implements the provider adapters the notification
// orchestrator dispatches through.
//
// Each adapter handles one channel type:
//
//   - MQTTPush publishes to graylogic/ui/{user}/notification for the UI clients
//   - SNSSender sends SMS through Amazon SNS
//   - SESSender sends email through Amazon SES
//   - HubInApp pushes to the user's live hub connections
//
// Adapters return a receipt whose Status is sent, delivered or failed. The
// orchestrator treats adapters as opaque and only inspects that status.
package delivery
