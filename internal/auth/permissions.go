package auth

import "slices"

// Permission is a named capability checked by the HTTP layer.
type Permission string

const (
	// PermDeviceRead allows watching lights, fans and readings.
	PermDeviceRead Permission = "device:read"
	// PermDeviceOperate allows toggling lights and driving fans. The store
	// rules still decide per path.
	PermDeviceOperate Permission = "device:operate"
	// PermUserManage allows listing accounts and ending their sessions.
	PermUserManage Permission = "user:manage"
	// PermAuditRead allows reading the audit trail.
	PermAuditRead Permission = "audit:read"
)

// rolePermissions is the single source of truth for role capabilities.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {PermDeviceRead},
	RoleUser:   {PermDeviceRead, PermDeviceOperate},
	RoleAdmin:  {PermDeviceRead, PermDeviceOperate, PermUserManage, PermAuditRead},
	RoleOwner:  {PermDeviceRead, PermDeviceOperate, PermUserManage, PermAuditRead},
}

// HasPermission reports whether role grants perm. Unknown roles have none.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of the permissions granted to role,
// or nil for an unknown role.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
