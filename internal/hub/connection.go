package hub

import (
	"slices"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
)

// State is a connection lifecycle state.
type State string

// Connection states.
const (
	StateConnecting    State = "connecting"
	StateAuthenticated State = "authenticated"
	StateActive        State = "active"
	StateDisconnected  State = "disconnected"
)

// Transport carries serialised envelopes to one client.
// Send must not block for long; implementations buffer or fail fast.
type Transport interface {
	Send(data []byte) error
	Ping() error
	Close() error
}

// ConnectionInfo is a read-only snapshot of a connection.
type ConnectionInfo struct {
	ID            string        `json:"id"`
	State         State         `json:"state"`
	Identity      auth.Identity `json:"identity"`
	Authenticated bool          `json:"authenticated"`
	Channels      []string      `json:"channels"`
	ConnectedAt   time.Time     `json:"connectedAt"`
	LastActivity  time.Time     `json:"lastActivity"`
}

// connection is the hub's mutable connection state. Guarded by Hub.mu.
type connection struct {
	id            string
	transport     Transport
	state         State
	identity      auth.Identity
	perms         auth.PermissionSet
	authenticated bool
	channels      map[string]struct{}
	connectedAt   time.Time
	lastActivity  time.Time
	window        slidingWindow
}

// admit assigns an identity and its role's permissions.
func (c *connection) admit(id auth.Identity) {
	c.identity = id
	c.perms = auth.NewPermissionSet(auth.PermissionsForRole(id.Role)...)
}

// permitted reports whether the connection may use a channel.
func (c *connection) permitted(ch *channel) bool {
	return c.identity.Role == auth.RoleAdmin || c.perms.HasAll(ch.spec.Permissions)
}

func (c *connection) info() ConnectionInfo {
	chans := make([]string, 0, len(c.channels))
	for id := range c.channels {
		chans = append(chans, id)
	}
	slices.Sort(chans)
	return ConnectionInfo{
		ID:            c.id,
		State:         c.state,
		Identity:      c.identity,
		Authenticated: c.authenticated,
		Channels:      chans,
		ConnectedAt:   c.connectedAt,
		LastActivity:  c.lastActivity,
	}
}

// slidingWindow tracks send timestamps within a trailing window.
type slidingWindow struct {
	limit  int
	period time.Duration
	sends  []time.Time
}

// allow prunes expired timestamps and records now if under the limit.
// A non-positive limit disables the check.
func (w *slidingWindow) allow(now time.Time) bool {
	if w.limit <= 0 {
		return true
	}
	cutoff := now.Add(-w.period)
	i := 0
	for i < len(w.sends) && !w.sends[i].After(cutoff) {
		i++
	}
	w.sends = w.sends[i:]
	if len(w.sends) >= w.limit {
		return false
	}
	w.sends = append(w.sends, now)
	return true
}
