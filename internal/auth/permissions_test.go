package auth

import "testing"

func TestHasPermission_User(t *testing.T) {
	if !HasPermission(RoleUser, PermTodoOwn) {
		t.Error("user lacks todo:own")
	}
	for _, perm := range []Permission{PermUserManage, PermUserInspect, PermAuditRead} {
		if HasPermission(RoleUser, perm) {
			t.Errorf("user granted %s", perm)
		}
	}
}

func TestHasPermission_Admin(t *testing.T) {
	for _, perm := range []Permission{PermTodoOwn, PermUserManage, PermUserInspect, PermAuditRead} {
		if !HasPermission(RoleAdmin, perm) {
			t.Errorf("admin lacks %s", perm)
		}
	}
}

func TestHasPermission_InvalidRole(t *testing.T) {
	if HasPermission("ghost", PermTodoOwn) {
		t.Error("unknown role granted a permission")
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleAdmin)
	if len(perms) == 0 {
		t.Fatal("admin has no permissions")
	}

	// The returned slice is a copy; mutating it must not poison the model.
	perms[0] = "tampered"
	if HasPermission(RoleAdmin, "tampered") {
		t.Error("mutating the returned slice changed the permission model")
	}
}

func TestPermissionsForRole_Unknown(t *testing.T) {
	if perms := PermissionsForRole("ghost"); perms != nil {
		t.Errorf("PermissionsForRole(ghost) = %v, want nil", perms)
	}
}
