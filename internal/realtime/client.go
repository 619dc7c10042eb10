package realtime

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iliyamo/field-service-platform/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set Authorization headers on WebSocket handshakes, so
	// origin checking is left to the deployment's reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request, authenticates the handshake from the
// ?token= query parameter and runs the connection's pumps until it drops.
// A missing or invalid token closes the socket with a policy violation
// rather than an HTTP error, since the upgrade has already happened by the
// time we can write a close frame the client library will surface.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, secret string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: upgrade failed: %v", err)
		return
	}

	claims, err := utils.ParseAccessToken(secret, r.URL.Query().Get("token"))
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	client := h.Register(claims.UserID, claims.Role, claims.TenantID, claims.DriverID)
	go client.writePump(conn)
	go client.readPump(conn)
}

// readPump drains inbound frames so pong handlers fire and close frames are
// seen.  Inbound payloads are ignored; the socket is notification-only.
func (c *Client) readPump(conn *websocket.Conn) {
	defer func() {
		c.hub.Unregister(c)
		_ = conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: client user=%d read error: %v", c.UserID, err)
			}
			return
		}
	}
}

// writePump serializes all writes to the connection: queued notifications
// plus the periodic ping that keeps half-open connections from lingering.
func (c *Client) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
