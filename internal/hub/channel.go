package hub

import (
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
)

// ChannelType classifies channels.
type ChannelType string

// Channel types.
const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
	ChannelDevice  ChannelType = "device"
	ChannelAdmin   ChannelType = "admin"
	ChannelSystem  ChannelType = "system"
)

// Default channel IDs.
const (
	ChannelEnergyData   = "ENERGY_DATA"
	ChannelDeviceStatus = "DEVICE_STATUS"
	ChannelAlerts       = "ALERTS"
	ChannelAdminPanel   = "ADMIN_PANEL"
)

// ChannelSpec describes a channel to register.
type ChannelSpec struct {
	ID             string            `json:"id" yaml:"id"`
	Name           string            `json:"name" yaml:"name"`
	Type           ChannelType       `json:"type" yaml:"type"`
	Permissions    []auth.Permission `json:"permissions" yaml:"permissions"`
	MaxSubscribers int               `json:"maxSubscribers" yaml:"max_subscribers"` // 0 = unlimited
}

// ChannelStats are running counters for one channel.
type ChannelStats struct {
	ActiveSubscribers int       `json:"activeSubscribers"`
	TotalSubscribers  int64     `json:"totalSubscribers"`
	MessagesSent      int64     `json:"messagesSent"`
	LastActivity      time.Time `json:"lastActivity,omitempty"`
}

// ChannelInfo is a read-only snapshot of a channel.
type ChannelInfo struct {
	ChannelSpec
	Stats ChannelStats `json:"stats"`
}

// DefaultChannels returns the built-in channel catalog.
func DefaultChannels() []ChannelSpec {
	return []ChannelSpec{
		{ID: ChannelEnergyData, Name: "Energy data", Type: ChannelPublic,
			Permissions: []auth.Permission{auth.PermReadEnergy}, MaxSubscribers: 1000},
		{ID: ChannelDeviceStatus, Name: "Device status", Type: ChannelDevice,
			Permissions: []auth.Permission{auth.PermDeviceConnect}, MaxSubscribers: 500},
		{ID: ChannelAlerts, Name: "Alerts", Type: ChannelPublic,
			Permissions: []auth.Permission{auth.PermReadAlerts}, MaxSubscribers: 1000},
		{ID: ChannelAdminPanel, Name: "Admin panel", Type: ChannelAdmin,
			Permissions: []auth.Permission{auth.PermAdminMonitor}, MaxSubscribers: 50},
	}
}

// channel is the hub's mutable channel state. Guarded by Hub.mu.
type channel struct {
	spec        ChannelSpec
	subscribers map[string]struct{}
	stats       ChannelStats
}

func newChannel(spec ChannelSpec) *channel {
	return &channel{spec: spec, subscribers: make(map[string]struct{})}
}

func (c *channel) full() bool {
	return c.spec.MaxSubscribers > 0 && len(c.subscribers) >= c.spec.MaxSubscribers
}

func (c *channel) info() ChannelInfo {
	st := c.stats
	st.ActiveSubscribers = len(c.subscribers)
	spec := c.spec
	spec.Permissions = append([]auth.Permission(nil), c.spec.Permissions...)
	return ChannelInfo{ChannelSpec: spec, Stats: st}
}
