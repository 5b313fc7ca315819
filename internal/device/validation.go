package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxMetadataKeys   = 50
	maxStringValueLen = 1024
)

// idRegex matches the device IDs accepted by the telemetry validator.
var idRegex = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

// ValidateDevice checks a directory entry.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if !idRegex.MatchString(d.ID) {
		return fmt.Errorf("%w: id %q has invalid format", ErrInvalidDevice, d.ID)
	}
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	if strings.TrimSpace(d.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidDevice)
	}
	if len(d.Metadata) > maxMetadataKeys {
		return fmt.Errorf("%w: metadata exceeds %d keys", ErrInvalidDevice, maxMetadataKeys)
	}
	for k, v := range d.Metadata {
		if s, ok := v.(string); ok && len(s) > maxStringValueLen {
			return fmt.Errorf("%w: metadata %q exceeds %d characters", ErrInvalidDevice, k, maxStringValueLen)
		}
	}
	return nil
}
