package pipeline

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// Cache keeps the latest processed record per device and record type.
// It is itself an OutputHandler for the cache output type.
type Cache struct {
	mu     sync.RWMutex
	latest map[cacheKey]*telemetry.Record
}

type cacheKey struct {
	deviceID   string
	recordType telemetry.RecordType
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{latest: make(map[cacheKey]*telemetry.Record)}
}

// Deliver stores a copy of rec unless a newer reading is already cached.
func (c *Cache) Deliver(_ context.Context, _ Output, rec *telemetry.Record) error {
	key := cacheKey{deviceID: rec.DeviceID, recordType: rec.Type}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.latest[key]; ok && cur.Timestamp > rec.Timestamp {
		return nil
	}
	c.latest[key] = rec.Clone()
	return nil
}

// Get returns the latest record for a device and type.
func (c *Cache) Get(deviceID string, t telemetry.RecordType) (*telemetry.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.latest[cacheKey{deviceID: deviceID, recordType: t}]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Device returns the latest record of every type for a device.
func (c *Cache) Device(deviceID string) []*telemetry.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*telemetry.Record
	for k, rec := range c.latest {
		if k.deviceID == deviceID {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.latest)
}
