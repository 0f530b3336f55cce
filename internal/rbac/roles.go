package rbac

import "admin-auth/internal/auth"

// Role groups used by the route table. Matching is flat: no hierarchy, no
// implied roles. An admin who should also pass member checks must hold both.
var (
	Admins  = []auth.Role{auth.RoleAdmin}
	Members = []auth.Role{auth.RoleAdmin, auth.RoleUser}
	Anyone  = []auth.Role{auth.RoleAdmin, auth.RoleUser, auth.RoleGuest}
)
