package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-service-platform/internal/realtime"
)

// RealtimeHandler exposes the WebSocket endpoint and the registry metrics.
type RealtimeHandler struct {
	Hub    *realtime.Hub
	Secret string
}

func NewRealtimeHandler(hub *realtime.Hub, secret string) *RealtimeHandler {
	return &RealtimeHandler{Hub: hub, Secret: secret}
}

// Connect upgrades the request and hands the connection to the hub.  Auth
// happens inside the hub against the ?token= query parameter because
// browsers cannot attach headers to WebSocket handshakes.
func (h *RealtimeHandler) Connect(c echo.Context) error {
	h.Hub.ServeWS(c.Response(), c.Request(), h.Secret)
	return nil
}

// Metrics snapshots the connection registry for the admin dashboard.
func (h *RealtimeHandler) Metrics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Hub.GetMetrics())
}
