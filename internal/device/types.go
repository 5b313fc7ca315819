package device

import "time"

// Device is a directory entry for a telemetry-producing device.
type Device struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Location     string         `json:"location,omitempty"`
	Manufacturer string         `json:"manufacturer,omitempty"`
	Model        string         `json:"model,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device.
// The metadata map is cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.Metadata = deepCopyMap(d.Metadata)
	return &cpy
}

// Fields returns the directory attributes merged into enriched records.
// Metadata keys are included unless they collide with a named attribute.
func (d *Device) Fields() map[string]any {
	out := make(map[string]any, len(d.Metadata)+5)
	for k, v := range d.Metadata {
		out[k] = deepCopyValue(v)
	}
	out["deviceName"] = d.Name
	out["deviceType"] = d.Type
	if d.Location != "" {
		out["location"] = d.Location
	}
	if d.Manufacturer != "" {
		out["manufacturer"] = d.Manufacturer
	}
	if d.Model != "" {
		out["model"] = d.Model
	}
	return out
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}
