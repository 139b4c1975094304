package rbac

// Role constants
const (
	RoleReader = "reader"
	RoleWriter = "writer"
	RoleAdmin  = "admin"
)

// Permission constants
const (
	PermAuditRead  = "audit:read"
	PermAuditWrite = "audit:write"
	PermStatsRead  = "stats:read"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleReader: {
		PermAuditRead, PermStatsRead,
	},
	RoleWriter: {
		PermAuditWrite,
		// writers are ingest clients and cannot read the trail back
	},
	RoleAdmin: {
		PermAuditRead, PermAuditWrite, PermStatsRead,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
