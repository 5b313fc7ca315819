// Package hub implements the permissioned publish/subscribe channel hub.
//
// Connections move through Connecting → Authenticated → Active →
// Disconnected. A connection may subscribe to, or broadcast on, a channel
// only when it holds every permission the channel requires (admins bypass
// the check) and the channel is below its subscriber cap. Inbound messages
// are rate limited with a sliding window per connection, and connections
// silent for more than two heartbeat intervals are force-disconnected.
//
// The hub is transport agnostic: anything implementing Transport can be
// attached. WebSocketHandler adapts gorilla/websocket connections.
//
// Thread Safety: all Hub methods are safe for concurrent use. Messages from
// one connection are handled in the order its transport delivers them.
package hub
