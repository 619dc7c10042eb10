package rbac_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/field-service-platform/internal/rbac"
)

// A platform admin must hold every permission granted anywhere below it in
// the chain, and a driver must not hold owner-level grants.
func TestInheritanceChain(t *testing.T) {
	g := rbac.Default()

	admin := g.Resolve(rbac.RolePlatformAdmin)
	owner := g.Resolve(rbac.RoleBusinessOwner)
	driver := g.Resolve(rbac.RoleDriver)

	for p := range owner {
		require.True(t, admin[p], "admin should inherit owner permission %s", p)
	}
	for p := range driver {
		require.True(t, owner[p], "owner should inherit driver permission %s", p)
	}

	require.True(t, rbac.Has(rbac.RolePlatformAdmin, rbac.PermPickupsWrite))
	require.True(t, rbac.Has(rbac.RoleDriver, rbac.PermPickupsRead))
	require.False(t, rbac.Has(rbac.RoleDriver, rbac.PermBusinessManage))
	require.False(t, rbac.Has(rbac.RoleEmployeeViewer, rbac.PermPickupsWrite))
}

func TestUnknownRoleHasNothing(t *testing.T) {
	require.False(t, rbac.Has(rbac.Role("ghost"), rbac.PermPickupsRead))
	require.False(t, rbac.Valid(rbac.Role("ghost")))
	require.True(t, rbac.Valid(rbac.RoleEmployeeViewer))
}

// Resolution must terminate even when a parent edge forms a cycle.
func TestResolveTerminatesOnCycle(t *testing.T) {
	g := rbac.Graph{
		Grants: map[rbac.Role][]rbac.Permission{
			rbac.RoleDriver:        {rbac.PermPickupsWrite},
			rbac.RoleBusinessOwner: {rbac.PermRoutesWrite},
		},
		Parents: map[rbac.Role][]rbac.Role{
			rbac.RoleDriver:        {rbac.RoleBusinessOwner},
			rbac.RoleBusinessOwner: {rbac.RoleDriver}, // cycle
		},
	}

	perms := g.Resolve(rbac.RoleDriver)
	require.True(t, perms[rbac.PermPickupsWrite])
	require.True(t, perms[rbac.PermRoutesWrite])
	require.Len(t, perms, 2)
}
