package auth

import "testing"

func TestPermissionsForRole(t *testing.T) {
	tests := []struct {
		role      Role
		should    []Permission
		shouldNot []Permission
	}{
		{
			role:      RoleUser,
			should:    []Permission{PermReadEnergy, PermReadAlerts},
			shouldNot: []Permission{PermDeviceConnect, PermAdminMonitor},
		},
		{
			role:      RoleDevice,
			should:    []Permission{PermDeviceConnect, PermReadAlerts},
			shouldNot: []Permission{PermReadEnergy, PermAdminMonitor},
		},
		{
			role:   RoleAdmin,
			should: []Permission{PermReadEnergy, PermReadAlerts, PermDeviceConnect, PermAdminMonitor},
		},
		{
			role:   RoleSystem,
			should: []Permission{PermReadEnergy, PermReadAlerts, PermDeviceConnect, PermAdminMonitor, "anything:else"},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			for _, p := range tt.should {
				if !HasPermission(tt.role, p) {
					t.Errorf("%s should have %s", tt.role, p)
				}
			}
			for _, p := range tt.shouldNot {
				if HasPermission(tt.role, p) {
					t.Errorf("%s should NOT have %s", tt.role, p)
				}
			}
		})
	}
}

func TestPermissionsForRole_Unknown(t *testing.T) {
	if perms := PermissionsForRole("owner"); perms != nil {
		t.Errorf("PermissionsForRole(owner) = %v, want nil", perms)
	}
	if HasPermission("owner", PermReadEnergy) {
		t.Error("unknown role should have no permissions")
	}
}

func TestPermissionSet_HasAll(t *testing.T) {
	s := NewPermissionSet(PermReadEnergy, PermReadAlerts)

	if !s.HasAll([]Permission{PermReadEnergy}) {
		t.Error("HasAll(read:energy) = false")
	}
	if s.HasAll([]Permission{PermReadEnergy, PermAdminMonitor}) {
		t.Error("HasAll with missing permission = true")
	}
	if !s.HasAll(nil) {
		t.Error("HasAll(nil) = false")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%s) = false", r)
		}
	}
	if IsValidRole("panel") {
		t.Error("IsValidRole(panel) = true")
	}
}
