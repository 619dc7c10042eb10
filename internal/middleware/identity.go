package middleware

// identity.go defines helper functions shared across middleware files.
// currentUserID feeds the rate limiter's key builder; it prefers the
// verified access claims and falls back to "guest" for anonymous traffic.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// currentUserID extracts a user identifier for rate-limit keying.  It
// returns "guest" when no principal is authenticated.
func currentUserID(c echo.Context) string {
	if claims := ClaimsFromContext(c); claims != nil {
		return claims.Role + ":" + strconv.FormatUint(claims.UserID, 10)
	}
	if v, ok := c.Get("user_id").(string); ok && v != "" {
		return v
	}
	return "guest"
}
