package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-service-platform/internal/auth"
	"github.com/iliyamo/field-service-platform/internal/config"
	"github.com/iliyamo/field-service-platform/internal/middleware"
	"github.com/iliyamo/field-service-platform/internal/rbac"
	"github.com/iliyamo/field-service-platform/internal/repository"
	"github.com/iliyamo/field-service-platform/internal/tenant"
	"github.com/iliyamo/field-service-platform/internal/utils"
)

// refreshCookieName is the HTTP-only cookie carrying the refresh token.
const refreshCookieName = "refresh_token"

// AuthHandler bundles dependencies for the session endpoints.
type AuthHandler struct {
	Cfg  config.Config
	Auth *auth.Service
}

func NewAuthHandler(cfg config.Config, svc *auth.Service) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Auth: svc}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
type forgotReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type userPart struct {
	ID           uint64  `json:"id"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	Role         string  `json:"role"`
	TenantID     *uint64 `json:"tenant_id,omitempty"`
	BusinessName string  `json:"business_name,omitempty"`
	Subdomain    string  `json:"subdomain,omitempty"`
	DriverID     *uint64 `json:"driver_id,omitempty"`
}

// LoginFor returns the login handler for one principal kind.  The four
// roles share the flow; only the table probed and the tenant requirement
// differ, and both live in the auth service.
func (h *AuthHandler) LoginFor(role rbac.Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
		}
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if req.Email == "" || req.Password == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "email and password are required"})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		tn := middleware.TenantFromContext(c)
		sess, err := h.Auth.Login(ctx, role, tn, req.Email, req.Password, auth.SessionMeta{
			UserAgent: c.Request().UserAgent(),
			IP:        middleware.RealIPOf(c),
		})
		if err != nil {
			if err == auth.ErrInvalidCredentials {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "invalid credentials"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "login failed"})
		}

		h.setRefreshCookie(c, sess.RefreshToken, sess.RefreshExpires)
		return c.JSON(http.StatusOK, echo.Map{
			"success":     true,
			"user":        toUserPart(sess.Principal, tn),
			"accessToken": sess.AccessToken,
			"expiresAt":   sess.AccessExpires,
		})
	}
}

// Refresh exchanges the refresh cookie for a fresh pair.  A JSON body with
// refresh_token is accepted as a fallback for non-browser clients.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := h.refreshTokenFrom(c)
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "missing refresh token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tn := middleware.TenantFromContext(c)
	sess, err := h.Auth.Refresh(ctx, raw, tn, auth.SessionMeta{
		UserAgent: c.Request().UserAgent(),
		IP:        middleware.RealIPOf(c),
	})
	if err != nil {
		h.clearRefreshCookie(c)
		switch err {
		case auth.ErrRefreshTokenRevoked:
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "refresh token revoked"})
		case utils.ErrInvalidToken:
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "invalid refresh token"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "refresh failed"})
		}
	}

	h.setRefreshCookie(c, sess.RefreshToken, sess.RefreshExpires)
	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"user":        toUserPart(sess.Principal, tn),
		"accessToken": sess.AccessToken,
		"expiresAt":   sess.AccessExpires,
	})
}

// Logout clears the cookie and best-effort revokes the persisted record.
// Always 200: from the client's point of view the session is gone.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	h.Auth.Logout(ctx, h.refreshTokenFrom(c))
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "logged out"})
}

// Me returns the profile embedded in the verified access token without a
// database round trip.
func (h *AuthHandler) Me(c echo.Context) error {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user": userPart{
			ID:           claims.UserID,
			Email:        claims.Email,
			Role:         claims.Role,
			TenantID:     claims.TenantID,
			BusinessName: claims.BusinessName,
			Subdomain:    claims.Subdomain,
			DriverID:     claims.DriverID,
		},
	})
}

// ChangePassword re-verifies the current password before rotating the hash;
// success invalidates every existing session, so the cookie is cleared too.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "unauthorized"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tn := middleware.TenantFromContext(c)
	err := h.Auth.ChangePassword(ctx, rbac.Role(claims.Role), tn, claims.UserID, req.CurrentPassword, req.NewPassword)
	switch err {
	case nil:
	case auth.ErrWeakPassword:
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": err.Error()})
	case auth.ErrInvalidCredentials:
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "invalid credentials"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "change password failed"})
	}

	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "password changed, please log in again"})
}

// ForgotPassword creates a reset request.  The response is identical
// whether or not the email exists.  Delivery is out of band; in dev the
// token is echoed back so the flow can be exercised without a mailer.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "email is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	token, err := h.Auth.ForgotPassword(ctx, middleware.TenantFromContext(c), req.Email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "request failed"})
	}

	resp := echo.Map{"success": true, "message": "if the account exists, a reset link has been sent"}
	if h.Cfg.Env == "dev" && token != "" {
		resp["resetToken"] = token
	}
	return c.JSON(http.StatusOK, resp)
}

// ResetPassword redeems a single-use reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
	}
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "token is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Auth.ResetPassword(ctx, req.Token, req.NewPassword)
	switch err {
	case nil:
	case auth.ErrWeakPassword:
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": err.Error()})
	case repository.ErrResetTokenInvalid:
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "reset token is invalid or already used"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "reset failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "password reset, please log in"})
}

// ----- helpers -----

func toUserPart(p *repository.Principal, tn tenant.Context) userPart {
	return userPart{
		ID:           p.ID,
		Email:        p.Email,
		Name:         p.Name,
		Role:         string(p.Role),
		TenantID:     p.BusinessID,
		BusinessName: tn.BusinessName,
		Subdomain:    tn.Subdomain,
		DriverID:     p.DriverID,
	}
}

func (h *AuthHandler) refreshTokenFrom(c echo.Context) string {
	if ck, err := c.Cookie(refreshCookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&body); err == nil {
		return body.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, token string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/v1/auth",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   h.Cfg.Env == "prod",
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/v1/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cfg.Env == "prod",
		SameSite: http.SameSiteStrictMode,
	})
}
