package tenant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/field-service-platform/internal/tenant"
)

type fakeDirectory struct {
	bySubdomain map[string]*tenant.Business
	byDomain    map[string]*tenant.Business
}

func (f *fakeDirectory) FindByCustomDomain(_ context.Context, host string) (*tenant.Business, error) {
	return f.byDomain[host], nil
}

func (f *fakeDirectory) FindBySubdomain(_ context.Context, sub string) (*tenant.Business, error) {
	return f.bySubdomain[sub], nil
}

func newFakeDirectory() *fakeDirectory {
	acme := &tenant.Business{ID: 1, Name: "Acme Disposal", Subdomain: "acme", Schema: "tenant_acme", Status: tenant.StatusActive}
	foo := &tenant.Business{ID: 2, Name: "Foo Services", Subdomain: "foo", Schema: "tenant_foo", CustomDomain: "pickups.foo.com", Status: tenant.StatusActive}
	bar := &tenant.Business{ID: 3, Name: "Bar Hauling", Subdomain: "bar", Schema: "tenant_bar", CustomDomain: "portal.bar.com", Status: "suspended"}
	baz := &tenant.Business{ID: 4, Name: "Baz Moving", Subdomain: "baz", Schema: "tenant_baz", Status: "pending"}
	return &fakeDirectory{
		bySubdomain: map[string]*tenant.Business{"acme": acme, "foo": foo, "bar": bar, "baz": baz},
		byDomain:    map[string]*tenant.Business{"pickups.foo.com": foo, "portal.bar.com": bar},
	}
}

func newResolver() *tenant.Resolver {
	return tenant.NewResolver(newFakeDirectory(), "fieldserve.io", "exec", false)
}

func TestResolveSubdomainsAreDisjoint(t *testing.T) {
	r := newResolver()

	a, err := r.Resolve(context.Background(), "acme.fieldserve.io", "")
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), "foo.fieldserve.io", "")
	require.NoError(t, err)

	require.True(t, a.HasTenant())
	require.True(t, b.HasTenant())
	require.NotEqual(t, a.BusinessID, b.BusinessID)
	require.NotEqual(t, a.Schema, b.Schema)
	require.Equal(t, "tenant_acme", a.Schema)
	require.Equal(t, uint64(1), a.BusinessID)
}

func TestResolveStripsPort(t *testing.T) {
	r := newResolver()
	c, err := r.Resolve(context.Background(), "acme.fieldserve.io:8080", "")
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.BusinessID)
}

func TestResolveUnknownHostFailsClosed(t *testing.T) {
	r := newResolver()
	_, err := r.Resolve(context.Background(), "ghost.fieldserve.io", "")
	require.ErrorIs(t, err, tenant.ErrUnknownTenant)

	_, err = r.Resolve(context.Background(), "elsewhere.example.com", "")
	require.ErrorIs(t, err, tenant.ErrUnknownTenant)
}

func TestResolveExecPortal(t *testing.T) {
	r := newResolver()
	c, err := r.Resolve(context.Background(), "exec.fieldserve.io", "")
	require.NoError(t, err)
	require.True(t, c.IsExec())
	require.False(t, c.HasTenant())
	require.Zero(t, c.BusinessID)
}

func TestResolveBaseDomainIsPublic(t *testing.T) {
	r := newResolver()
	c, err := r.Resolve(context.Background(), "fieldserve.io", "")
	require.NoError(t, err)
	require.False(t, c.HasTenant())
	require.False(t, c.IsExec())
}

func TestResolveCustomDomain(t *testing.T) {
	r := newResolver()
	c, err := r.Resolve(context.Background(), "pickups.foo.com", "")
	require.NoError(t, err)
	require.Equal(t, uint64(2), c.BusinessID)
	require.Equal(t, "tenant_foo", c.Schema)
}

func TestResolveRejectsInactiveBusinesses(t *testing.T) {
	r := newResolver()

	// Suspended: neither its subdomain nor its custom domain resolves.
	_, err := r.Resolve(context.Background(), "bar.fieldserve.io", "")
	require.ErrorIs(t, err, tenant.ErrUnknownTenant)
	_, err = r.Resolve(context.Background(), "portal.bar.com", "")
	require.ErrorIs(t, err, tenant.ErrUnknownTenant)

	// Pending: registration has not finished provisioning yet.
	_, err = r.Resolve(context.Background(), "baz.fieldserve.io", "")
	require.ErrorIs(t, err, tenant.ErrUnknownTenant)

	// The override path is gated the same way.
	_, err = r.Resolve(context.Background(), "localhost:4000", "bar")
	require.ErrorIs(t, err, tenant.ErrUnknownTenant)
}

func TestResolveOverrideHeader(t *testing.T) {
	r := newResolver()
	c, err := r.Resolve(context.Background(), "localhost:4000", "acme")
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.BusinessID)

	// An override naming the exec subdomain reaches the portal.
	c, err = r.Resolve(context.Background(), "localhost:4000", "exec")
	require.NoError(t, err)
	require.True(t, c.IsExec())
}

func TestResolveIPv6Hosts(t *testing.T) {
	r := newResolver()

	// IPv6 literals keep their colons when the port is stripped; with an
	// override they behave like any other local host.
	c, err := r.Resolve(context.Background(), "[::1]:8080", "acme")
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.BusinessID)

	c, err = r.Resolve(context.Background(), "::1", "acme")
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.BusinessID)

	// Without an override an address is just an unknown host.
	_, err = r.Resolve(context.Background(), "[::1]:8080", "")
	require.ErrorIs(t, err, tenant.ErrUnknownTenant)
}

func TestResolveNestedLabelIsNotASubdomain(t *testing.T) {
	r := newResolver()
	_, err := r.Resolve(context.Background(), "a.acme.fieldserve.io", "")
	require.ErrorIs(t, err, tenant.ErrUnknownTenant)
}

func TestResolveWithoutBaseDomain(t *testing.T) {
	// Dev fallback: first label of a 3+ label host is treated as the
	// subdomain.
	dev := tenant.NewResolver(newFakeDirectory(), "", "exec", true)
	c, err := dev.Resolve(context.Background(), "acme.lvh.me", "")
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.BusinessID)

	// Outside dev the heuristic is disabled and resolution hard-fails.
	prod := tenant.NewResolver(newFakeDirectory(), "", "exec", false)
	_, err = prod.Resolve(context.Background(), "acme.lvh.me", "")
	require.ErrorIs(t, err, tenant.ErrNoBaseDomain)
}

func TestReservedSubdomains(t *testing.T) {
	for _, sub := range []string{"admin", "api", "www", "mail", "test", "exec"} {
		require.True(t, tenant.IsReservedSubdomain(sub, "exec"), sub)
	}
	require.False(t, tenant.IsReservedSubdomain("acme", "exec"))
}
