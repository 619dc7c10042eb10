// Package router wires HTTP routes to handlers and attaches the middleware
// chain each route group needs.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-service-platform/internal/handler"
	"github.com/iliyamo/field-service-platform/internal/middleware"
	"github.com/iliyamo/field-service-platform/internal/rbac"
)

// RegisterRoutes registers routes that require neither authentication nor a
// resolved tenant.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the session endpoints.  Credential-bearing routes
// go through the rate limiter; routes that read the caller's identity go
// through JWTAuth instead.  The platform-admin login lives under /v1/admin
// and skips tenant resolution, since the exec portal carries no tenant.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc, jwtSecret string, enforceTenant bool) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/owner/login", a.LoginFor(rbac.RoleBusinessOwner))
	g.POST("/driver/login", a.LoginFor(rbac.RoleDriver))
	g.POST("/employee/login", a.LoginFor(rbac.RoleEmployeeViewer))
	g.POST("/refresh", a.Refresh)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password", a.ResetPassword)
	g.POST("/logout", a.Logout)

	e.POST("/v1/admin/auth/login", a.LoginFor(rbac.RolePlatformAdmin), limiter)

	authed := e.Group("/v1/auth", middleware.JWTAuth(jwtSecret))
	authed.GET("/me", a.Me)
	authed.POST("/change-password", a.ChangePassword, middleware.RequireTenantMatch(enforceTenant))
}

// RegisterBusiness registers tenant onboarding.  Registration happens on
// the public marketing host, so no tenant or session is required; the rate
// limiter still applies to keep the signup form from being hammered.
func RegisterBusiness(e *echo.Echo, b *handler.BusinessHandler, limiter echo.MiddlewareFunc) {
	e.POST("/v1/business/register", b.Register, limiter)
	e.GET("/v1/business/subdomain-check", b.CheckSubdomain, limiter)
}

// RegisterPickups registers the status publishing endpoint for tenant
// staff.  Requires a session, write permission on pickups and, when
// enforcement is on, a token issued for the resolved tenant.
func RegisterPickups(e *echo.Echo, p *handler.PickupHandler, jwtSecret string, enforceTenant bool) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireTenantMatch(enforceTenant))
	g.POST("/pickups/:id/status", p.UpdateStatus, middleware.RequirePermission(rbac.PermPickupsWrite))
}

// RegisterRealtime registers the WebSocket endpoint and its metrics view.
// The socket authenticates during the handshake from the token query
// parameter, so no JWTAuth middleware sits in front of it; metrics are
// platform-admin only.
func RegisterRealtime(e *echo.Echo, r *handler.RealtimeHandler, jwtSecret string) {
	e.GET("/v1/ws", r.Connect)
	e.GET("/v1/admin/realtime/metrics", r.Metrics,
		middleware.JWTAuth(jwtSecret), middleware.RequirePermission(rbac.PermPlatformManage))
}
