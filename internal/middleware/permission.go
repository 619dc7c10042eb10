package middleware // middleware provides shared request processing for handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-service-platform/internal/rbac"
)

// RequirePermission returns middleware enforcing that the authenticated
// principal's role holds the permission, directly or through inheritance.
// No principal is a 401; a principal without the permission is a 403.  It
// assumes JWTAuth ran earlier in the chain.
func RequirePermission(perm rbac.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFromContext(c)
			if claims == nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			if !rbac.Has(rbac.Role(claims.Role), perm) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// RequireTenantMatch returns middleware guarding against a valid token for
// tenant A being replayed against tenant B's subdomain.  It is a no-op
// unless enforcement is enabled in configuration.  Platform admins carry no
// tenant and are exempt.
func RequireTenantMatch(enforce bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !enforce {
				return next(c)
			}
			claims := ClaimsFromContext(c)
			if claims == nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			if claims.Role == string(rbac.RolePlatformAdmin) {
				return next(c)
			}
			tn := TenantFromContext(c)
			if claims.TenantID == nil || !tn.HasTenant() || *claims.TenantID != tn.BusinessID {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant mismatch"})
			}
			return next(c)
		}
	}
}
