package handler

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-service-platform/internal/config"
	"github.com/iliyamo/field-service-platform/internal/repository"
	"github.com/iliyamo/field-service-platform/internal/tenant"
	"github.com/iliyamo/field-service-platform/internal/utils"
)

// subdomainPattern constrains what can appear as a DNS label under the base
// domain.  Hyphens are allowed in the label but mapped to underscores in
// the schema name.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// BusinessHandler serves tenant onboarding: registration with schema
// provisioning and the subdomain availability probe used by the signup form.
type BusinessHandler struct {
	Cfg        config.Config
	Businesses *repository.BusinessRepo
	Principals *repository.PrincipalRepo
}

func NewBusinessHandler(cfg config.Config, b *repository.BusinessRepo, p *repository.PrincipalRepo) *BusinessHandler {
	return &BusinessHandler{Cfg: cfg, Businesses: b, Principals: p}
}

type registerBusinessReq struct {
	BusinessName  string `json:"business_name"`
	Subdomain     string `json:"subdomain"`
	OwnerName     string `json:"owner_name"`
	OwnerEmail    string `json:"owner_email"`
	OwnerPassword string `json:"owner_password"`
}

// Register creates the business row, provisions its schema and creates the
// owner account, then activates the tenant.  Provisioning runs before the
// owner insert so a registration that fails midway never yields a login
// that points at a missing schema.
func (h *BusinessHandler) Register(c echo.Context) error {
	var req registerBusinessReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
	}
	req.BusinessName = strings.TrimSpace(req.BusinessName)
	req.Subdomain = strings.ToLower(strings.TrimSpace(req.Subdomain))
	req.OwnerName = strings.TrimSpace(req.OwnerName)
	req.OwnerEmail = strings.ToLower(strings.TrimSpace(req.OwnerEmail))

	if req.BusinessName == "" || req.Subdomain == "" || req.OwnerEmail == "" || req.OwnerPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "business_name, subdomain, owner_email and owner_password are required"})
	}
	if !subdomainPattern.MatchString(req.Subdomain) {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "subdomain may contain lowercase letters, digits and hyphens"})
	}
	if tenant.IsReservedSubdomain(req.Subdomain, h.Cfg.ExecSubdomain) {
		return c.JSON(http.StatusConflict, echo.Map{"success": false, "message": "subdomain is reserved"})
	}
	if len(req.OwnerPassword) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "password must be at least 8 characters"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	schema := "tenant_" + strings.ReplaceAll(req.Subdomain, "-", "_")

	id, err := h.Businesses.Create(ctx, req.BusinessName, req.Subdomain, schema)
	if err != nil {
		if err == repository.ErrSubdomainTaken {
			return c.JSON(http.StatusConflict, echo.Map{"success": false, "message": "subdomain is already taken"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "registration failed"})
	}

	if err := h.Businesses.ProvisionSchema(ctx, schema); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "tenant provisioning failed"})
	}

	hash, err := utils.HashPassword(req.OwnerPassword, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "registration failed"})
	}
	ownerID, err := h.Principals.CreateOwner(ctx, id, req.OwnerName, req.OwnerEmail, hash)
	if err != nil {
		if err == repository.ErrEmailExists {
			return c.JSON(http.StatusConflict, echo.Map{"success": false, "message": "owner email already registered for this business"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "registration failed"})
	}

	if err := h.Businesses.Activate(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "registration failed"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"business": echo.Map{
			"id":        id,
			"name":      req.BusinessName,
			"subdomain": req.Subdomain,
		},
		"owner": echo.Map{
			"id":    ownerID,
			"email": req.OwnerEmail,
		},
	})
}

// CheckSubdomain reports whether a subdomain can still be registered.
// Reserved labels always report unavailable.
func (h *BusinessHandler) CheckSubdomain(c echo.Context) error {
	sub := strings.ToLower(strings.TrimSpace(c.QueryParam("subdomain")))
	if sub == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "subdomain query parameter is required"})
	}
	if !subdomainPattern.MatchString(sub) {
		return c.JSON(http.StatusOK, echo.Map{"success": true, "subdomain": sub, "available": false})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	free, err := h.Businesses.SubdomainAvailable(ctx, sub, h.Cfg.ExecSubdomain)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "availability check failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "subdomain": sub, "available": free})
}
