package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-service-platform/internal/middleware"
	"github.com/iliyamo/field-service-platform/internal/queue"
	queue_publisher "github.com/iliyamo/field-service-platform/internal/service"
)

// pickupStatuses is the closed set of states a pickup can be reported in.
var pickupStatuses = map[string]bool{
	"pending":   true,
	"assigned":  true,
	"en_route":  true,
	"picked_up": true,
	"delivered": true,
	"cancelled": true,
}

// PickupHandler publishes pickup status transitions to the broker; the
// background consumer fans them out to connected clients.
type PickupHandler struct{}

func NewPickupHandler() *PickupHandler { return &PickupHandler{} }

type pickupStatusReq struct {
	Status       string  `json:"status"`
	DriverID     *uint64 `json:"driver_id"`
	CustomerName string  `json:"customer_name"`
	Address      string  `json:"address"`
}

// UpdateStatus accepts POST /v1/pickups/:id/status.  The event is published
// with the tenant taken from the verified access token, never from the
// request body, so a client cannot emit into another tenant's room.
func (h *PickupHandler) UpdateStatus(c echo.Context) error {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil || claims.TenantID == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "unauthorized"})
	}

	pickupID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || pickupID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid pickup id"})
	}

	var req pickupStatusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if !pickupStatuses[req.Status] {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "unknown status"})
	}

	ev := queue.PickupStatusEvent{
		TenantID:     *claims.TenantID,
		TenantSchema: claims.TenantSchema,
		PickupID:     pickupID,
		DriverID:     req.DriverID,
		Status:       req.Status,
		CustomerName: req.CustomerName,
		Address:      req.Address,
		ChangedBy:    claims.UserID,
		ChangedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := queue_publisher.PublishPickupStatus(c.Request().Context(), ev); err != nil {
		// The status change itself is the client's concern; delivery of the
		// notification is eventual.
		return c.JSON(http.StatusAccepted, echo.Map{"success": true, "message": "status accepted, notification delayed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "status published"})
}
