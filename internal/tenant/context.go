// Package tenant resolves an inbound request's host to the business that
// owns it and carries the result through the request as an immutable value.
// Resolution fails closed: a host that matches no business is an error, it
// never falls through to the shared schema.
package tenant

// ExecSchema is the sentinel tenant identifier assigned to requests hitting
// the platform-admin portal.  The portal does not own a database schema.
const ExecSchema = "__exec__"

// Context is the request-scoped tenancy result.  It is produced once by the
// resolver middleware and threaded through handlers and storage; it is never
// stored in package-level state.
type Context struct {
	Schema       string // tenant schema name, ExecSchema, or "" for the public host
	BusinessID   uint64 // 0 when no business owns the request
	Subdomain    string // resolved subdomain, if any
	BusinessName string // display name, carried into access-token claims
}

// HasTenant reports whether the request resolved to a concrete business.
func (c Context) HasTenant() bool {
	return c.BusinessID != 0 && c.Schema != "" && c.Schema != ExecSchema
}

// IsExec reports whether the request targets the platform-admin portal.
func (c Context) IsExec() bool {
	return c.Schema == ExecSchema
}

// StatusActive is the only business status that resolves to a live tenant.
// A business stays pending until provisioning finishes and drops out of
// resolution again when suspended or canceled.
const StatusActive = "active"

// Business is the subset of a business row the resolver needs.
type Business struct {
	ID           uint64
	Name         string
	Subdomain    string
	CustomDomain string
	Schema       string
	Status       string
}

// Live reports whether the business should resolve to a tenant context.
func (b *Business) Live() bool {
	return b != nil && b.Status == StatusActive
}

// reservedSubdomains can never be registered by a business and never resolve
// to a tenant.
var reservedSubdomains = map[string]bool{
	"admin": true,
	"api":   true,
	"www":   true,
	"mail":  true,
	"test":  true,
}

// IsReservedSubdomain reports whether sub is off limits for registration.
// The configured exec subdomain is always reserved on top of the fixed set.
func IsReservedSubdomain(sub, execSubdomain string) bool {
	return reservedSubdomains[sub] || (execSubdomain != "" && sub == execSubdomain)
}
