package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermReadEnergy    Permission = "read:energy"
	PermReadAlerts    Permission = "read:alerts"
	PermDeviceConnect Permission = "device:connect"
	PermAdminMonitor  Permission = "admin:monitor"

	// PermAll satisfies every permission check.
	PermAll Permission = "*"
)

// PermissionsForRole returns the permissions granted to a role.
// This is the single source of truth for the authorisation model.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	switch role {
	case RoleUser:
		return []Permission{PermReadEnergy, PermReadAlerts}
	case RoleDevice:
		return []Permission{PermDeviceConnect, PermReadAlerts}
	case RoleAdmin:
		return []Permission{PermReadEnergy, PermReadAlerts, PermDeviceConnect, PermAdminMonitor}
	case RoleSystem:
		return []Permission{PermAll}
	}
	return nil
}

// PermissionSet is an immutable set of granted permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from perms.
func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has returns true if perm is granted directly or through the wildcard.
func (s PermissionSet) Has(perm Permission) bool {
	if _, ok := s[PermAll]; ok {
		return true
	}
	_, ok := s[perm]
	return ok
}

// HasAll returns true if every perm in required is granted.
func (s PermissionSet) HasAll(required []Permission) bool {
	for _, p := range required {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return NewPermissionSet(PermissionsForRole(role)...).Has(perm)
}
