package auth

import (
	"errors"
	"fmt"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a person viewing energy data and alerts.
	RoleUser Role = "user"

	// RoleDevice is a field device or gateway pushing telemetry.
	RoleDevice Role = "device"

	// RoleAdmin monitors the platform and bypasses channel permission checks.
	RoleAdmin Role = "admin"

	// RoleSystem is an internal service identity holding every permission.
	RoleSystem Role = "system"
)

// ValidRoles is the set of recognised roles.
var ValidRoles = []Role{RoleUser, RoleDevice, RoleAdmin, RoleSystem}

// IsValidRole returns true if r is a recognised role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Identity is the verified caller behind a token.
// Exactly one of UserID or DeviceID is normally set.
type Identity struct {
	UserID    string `json:"userId,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
	Role      Role   `json:"role"`
	SessionID string `json:"sessionId,omitempty"`
}

// Subject returns the user ID, or the device ID for device identities.
func (i Identity) Subject() string {
	if i.UserID != "" {
		return i.UserID
	}
	return i.DeviceID
}

// String renders the identity for logs.
func (i Identity) String() string {
	return fmt.Sprintf("%s:%s", i.Role, i.Subject())
}

// Sentinel errors for auth operations.
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
	ErrForbidden    = errors.New("insufficient permissions")
)
