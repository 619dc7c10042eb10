package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-service-platform/internal/tenant"
)

// tenantKey is the echo context key holding the resolved tenant.Context.
const tenantKey = "tenant_ctx"

// OverrideHeader is the explicit subdomain override used by local tooling;
// it has the same precedence as a subdomain resolved from the host.
const OverrideHeader = "X-Tenant-Subdomain"

// publicPaths are tenant-agnostic and skip resolution entirely: the health
// check, the platform-admin login and the token-derived profile endpoint.
var publicPaths = map[string]bool{
	"/healthz":             true,
	"/v1/admin/auth/login": true,
	"/v1/auth/me":          true,
}

// ResolveTenant returns middleware that resolves the request host to a
// tenant context and attaches it to the request.  Resolution fails closed:
// an unknown host is a 404, never a fall-through to a shared schema.
// OPTIONS preflight and the fixed public paths bypass resolution.
func ResolveTenant(r *tenant.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodOptions || publicPaths[c.Request().URL.Path] {
				c.Set(tenantKey, tenant.Context{})
				return next(c)
			}
			tn, err := r.Resolve(c.Request().Context(),
				c.Request().Host, c.Request().Header.Get(OverrideHeader))
			if err != nil {
				if errors.Is(err, tenant.ErrUnknownTenant) {
					return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown tenant"})
				}
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant resolution failed"})
			}
			c.Set(tenantKey, tn)
			return next(c)
		}
	}
}

// TenantFromContext returns the tenant context attached by ResolveTenant.
// The zero value means "no tenant" (public path or marketing host).
func TenantFromContext(c echo.Context) tenant.Context {
	if v, ok := c.Get(tenantKey).(tenant.Context); ok {
		return v
	}
	return tenant.Context{}
}

// RealIPOf trims the port off the remote address for session metadata.
func RealIPOf(c echo.Context) string {
	ip := c.RealIP()
	if i := strings.LastIndex(ip, ":"); i > 0 && strings.Count(ip, ":") == 1 {
		ip = ip[:i]
	}
	return ip
}
