package tenant

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrUnknownTenant is returned when a host resolves to no business.
// Handlers translate it into a 404; requests must never fall back to a
// shared schema.
var ErrUnknownTenant = errors.New("unknown tenant")

// ErrNoBaseDomain is returned when subdomain extraction is needed but no
// base domain is configured and the dev fallback is disabled.
var ErrNoBaseDomain = errors.New("base domain not configured")

// Directory looks businesses up for the resolver.  A (nil, nil) return means
// "no match" as opposed to a storage failure.
type Directory interface {
	FindByCustomDomain(ctx context.Context, host string) (*Business, error)
	FindBySubdomain(ctx context.Context, subdomain string) (*Business, error)
}

// Resolver maps hosts to tenant contexts.
type Resolver struct {
	dir           Directory
	baseDomain    string
	execSubdomain string
	devFallback   bool // allow label-count heuristic when no base domain is set
}

// NewResolver builds a resolver.  devFallback should only be true when
// APP_ENV=dev; config.Load refuses an empty base domain otherwise.
func NewResolver(dir Directory, baseDomain, execSubdomain string, devFallback bool) *Resolver {
	return &Resolver{
		dir:           dir,
		baseDomain:    strings.ToLower(baseDomain),
		execSubdomain: strings.ToLower(execSubdomain),
		devFallback:   devFallback,
	}
}

// Resolve determines the tenant context for a request host.  override is the
// explicit subdomain header used by local tooling; it takes the place of a
// subdomain extracted from the host.
//
// Order: exec portal sentinel, public base host, custom-domain equality,
// subdomain match, then fail closed with ErrUnknownTenant.
func (r *Resolver) Resolve(ctx context.Context, host, override string) (Context, error) {
	host = stripPort(strings.ToLower(strings.TrimSpace(host)))
	override = strings.ToLower(strings.TrimSpace(override))

	sub := override
	if sub == "" {
		var err error
		sub, err = r.extractSubdomain(host)
		if err != nil {
			return Context{}, err
		}
	}

	// The platform-admin portal bypasses tenant lookup entirely; it does not
	// own a schema.
	if sub != "" && sub == r.execSubdomain {
		return Context{Schema: ExecSchema, Subdomain: sub}, nil
	}

	// Bare base domain with no override is the public marketing host.
	if override == "" && r.baseDomain != "" && host == r.baseDomain {
		return Context{}, nil
	}

	// Custom domains are matched by exact host equality before any
	// subdomain interpretation.  Only active businesses resolve: pending,
	// suspended and canceled tenants are indistinguishable from unknown
	// hosts.
	if override == "" {
		b, err := r.dir.FindByCustomDomain(ctx, host)
		if err != nil {
			return Context{}, err
		}
		if b.Live() {
			return Context{Schema: b.Schema, BusinessID: b.ID, Subdomain: b.Subdomain, BusinessName: b.Name}, nil
		}
	}

	if sub != "" {
		b, err := r.dir.FindBySubdomain(ctx, sub)
		if err != nil {
			return Context{}, err
		}
		if b.Live() {
			return Context{Schema: b.Schema, BusinessID: b.ID, Subdomain: b.Subdomain, BusinessName: b.Name}, nil
		}
	}

	return Context{}, ErrUnknownTenant
}

// extractSubdomain returns the label in front of the configured base domain,
// or "" when the host is not beneath it.  Without a base domain the
// "more than two labels" heuristic is applied, and only in dev: it is not
// reliable for arbitrary public hostnames.
func (r *Resolver) extractSubdomain(host string) (string, error) {
	if r.baseDomain != "" {
		suffix := "." + r.baseDomain
		if !strings.HasSuffix(host, suffix) {
			return "", nil
		}
		sub := strings.TrimSuffix(host, suffix)
		if sub == "" || strings.Contains(sub, ".") {
			// Nested labels are not tenant subdomains.
			return "", nil
		}
		return sub, nil
	}
	if !r.devFallback {
		return "", ErrNoBaseDomain
	}
	if labels := strings.Split(host, "."); len(labels) > 2 {
		return labels[0], nil
	}
	return "", nil
}

// stripPort drops a trailing :port without mangling IPv6 literals, which
// carry colons of their own.
func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	// No port: either a plain name or a bracketed/bare IPv6 literal.
	return strings.Trim(host, "[]")
}
