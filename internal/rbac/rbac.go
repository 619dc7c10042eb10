// Package rbac declares the static role/permission graph and resolves a
// role's effective permission set through inheritance.  Roles and
// permissions are typed constants so a misspelled name fails to compile
// instead of silently resolving to "no permission".
package rbac

// Role identifies one of the four principal kinds.
type Role string

const (
	RolePlatformAdmin  Role = "platform_admin"
	RoleBusinessOwner  Role = "business_owner"
	RoleDriver         Role = "driver"
	RoleEmployeeViewer Role = "employee_viewer"
)

// Permission names a single guarded capability.
type Permission string

const (
	PermPickupsRead     Permission = "pickups:read"
	PermPickupsWrite    Permission = "pickups:write"
	PermRoutesRead      Permission = "routes:read"
	PermRoutesWrite     Permission = "routes:write"
	PermCustomersRead   Permission = "customers:read"
	PermCustomersWrite  Permission = "customers:write"
	PermDriversManage   Permission = "drivers:manage"
	PermTemplatesManage Permission = "templates:manage"
	PermBusinessManage  Permission = "business:manage"
	PermPlatformManage  Permission = "platform:manage"
)

// Graph pairs each role's direct grants with its parent roles.  Inheritance
// is downward: a role holds its own grants plus everything held by the roles
// beneath it.
type Graph struct {
	Grants  map[Role][]Permission
	Parents map[Role][]Role
}

// Default returns the production graph.  The chain is
// platform_admin > business_owner > driver > employee_viewer.
func Default() Graph {
	return Graph{
		Grants: map[Role][]Permission{
			RoleEmployeeViewer: {
				PermPickupsRead,
				PermRoutesRead,
				PermCustomersRead,
			},
			RoleDriver: {
				PermPickupsWrite,
			},
			RoleBusinessOwner: {
				PermRoutesWrite,
				PermCustomersWrite,
				PermDriversManage,
				PermTemplatesManage,
				PermBusinessManage,
			},
			RolePlatformAdmin: {
				PermPlatformManage,
			},
		},
		Parents: map[Role][]Role{
			RolePlatformAdmin: {RoleBusinessOwner},
			RoleBusinessOwner: {RoleDriver},
			RoleDriver:        {RoleEmployeeViewer},
		},
	}
}

// Resolve unions a role's direct grants with everything inherited from its
// parents.  A visited set guarantees termination on any graph shape,
// including an accidentally introduced cycle.
func (g Graph) Resolve(role Role) map[Permission]bool {
	out := make(map[Permission]bool)
	g.collect(role, out, make(map[Role]bool))
	return out
}

func (g Graph) collect(role Role, out map[Permission]bool, seen map[Role]bool) {
	if seen[role] {
		return
	}
	seen[role] = true
	for _, p := range g.Grants[role] {
		out[p] = true
	}
	for _, parent := range g.Parents[role] {
		g.collect(parent, out, seen)
	}
}

// resolved caches the effective permission sets of the default graph.  The
// graph is fixed for the process lifetime, so the cache is built once at
// init and only read afterwards.
var resolved = func() map[Role]map[Permission]bool {
	g := Default()
	out := make(map[Role]map[Permission]bool, len(g.Grants))
	for _, r := range []Role{RolePlatformAdmin, RoleBusinessOwner, RoleDriver, RoleEmployeeViewer} {
		out[r] = g.Resolve(r)
	}
	return out
}()

// Has reports whether the role holds the permission, directly or through
// inheritance, under the default graph.  Unknown roles hold nothing.
func Has(role Role, perm Permission) bool {
	return resolved[role][perm]
}

// Valid reports whether the role is one of the four declared roles.
func Valid(role Role) bool {
	_, ok := resolved[role]
	return ok
}
