package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-service-platform/internal/utils"
)

// claimsKey is the echo context key holding the verified *utils.AccessClaims.
const claimsKey = "access_claims"

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the verified claims into the request context.  The provided
// secret must match the one used when issuing tokens.  Handlers access the
// principal via ClaimsFromContext.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(claimsKey, claims)
			// Plain string fields for middleware that only needs identity
			// (e.g. the rate limiter's key builder).
			c.Set("user_id", strconv.FormatUint(claims.UserID, 10))
			c.Set("role", claims.Role)
			return next(c)
		}
	}
}

// ClaimsFromContext returns the verified access claims, or nil when the
// request did not pass JWTAuth.
func ClaimsFromContext(c echo.Context) *utils.AccessClaims {
	if v, ok := c.Get(claimsKey).(*utils.AccessClaims); ok {
		return v
	}
	return nil
}
