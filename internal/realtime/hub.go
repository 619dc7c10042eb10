// Package realtime maintains the registry of live WebSocket connections,
// grouped into tenant rooms and driver rooms, and exposes the broadcast
// and unicast primitives used by the notification pipeline.
package realtime

import (
	"encoding/json"
	"log"
	"sync"
)

// Notifier is the fan-out surface consumed by the rest of the system.  The
// in-process Hub is the single-node implementation; a shared pub/sub
// backend would implement the same interface for multi-node deployments.
type Notifier interface {
	BroadcastToDrivers(tenantID *uint64, message any)
	SendToDriver(tenantID, driverID uint64, message any)
}

// Client is one registered connection.  The send channel is drained by the
// connection's write pump; a full channel marks the client dead rather than
// blocking the hub.
type Client struct {
	UserID   uint64
	Role     string
	TenantID *uint64
	DriverID *uint64

	send chan []byte
	hub  *Hub
}

// driverKey identifies a driver room.
type driverKey struct {
	tenantID uint64
	driverID uint64
}

// Hub owns the room maps.  All map mutation happens under mu; connects and
// disconnects may race freely.
type Hub struct {
	mu          sync.RWMutex
	running     bool
	clients     map[*Client]bool
	tenantRooms map[uint64]map[*Client]bool
	driverRooms map[driverKey]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		running:     true,
		clients:     make(map[*Client]bool),
		tenantRooms: make(map[uint64]map[*Client]bool),
		driverRooms: make(map[driverKey]map[*Client]bool),
	}
}

// Register creates a client for an authenticated connection and inserts it
// into its tenant room and, for drivers, its driver room.
func (h *Hub) Register(userID uint64, role string, tenantID, driverID *uint64) *Client {
	c := &Client{
		UserID:   userID,
		Role:     role,
		TenantID: tenantID,
		DriverID: driverID,
		send:     make(chan []byte, 64),
		hub:      h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	if tenantID != nil {
		room := h.tenantRooms[*tenantID]
		if room == nil {
			room = make(map[*Client]bool)
			h.tenantRooms[*tenantID] = room
		}
		room[c] = true
		if driverID != nil {
			key := driverKey{*tenantID, *driverID}
			droom := h.driverRooms[key]
			if droom == nil {
				droom = make(map[*Client]bool)
				h.driverRooms[key] = droom
			}
			droom[c] = true
		}
	}
	log.Printf("realtime: client registered user=%d role=%s total=%d", userID, role, len(h.clients))
	return c
}

// Unregister removes the client from both rooms, garbage-collecting any
// room left empty, and closes its send channel.  Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	if c.TenantID != nil {
		if room := h.tenantRooms[*c.TenantID]; room != nil {
			delete(room, c)
			if len(room) == 0 {
				delete(h.tenantRooms, *c.TenantID)
			}
		}
		if c.DriverID != nil {
			key := driverKey{*c.TenantID, *c.DriverID}
			if room := h.driverRooms[key]; room != nil {
				delete(room, c)
				if len(room) == 0 {
					delete(h.driverRooms, key)
				}
			}
		}
	}
	close(c.send)
	log.Printf("realtime: client unregistered user=%d total=%d", c.UserID, len(h.clients))
}

// BroadcastToDrivers fans a message out to every live connection in the
// tenant's room, or to every connection server-wide when tenantID is nil
// (used for the small set of tenant-agnostic notifications).
func (h *Hub) BroadcastToDrivers(tenantID *uint64, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("realtime: marshal broadcast failed: %v", err)
		return
	}

	h.mu.RLock()
	var stalled []*Client
	if tenantID == nil {
		for c := range h.clients {
			if !trySend(c, payload) {
				stalled = append(stalled, c)
			}
		}
	} else {
		for c := range h.tenantRooms[*tenantID] {
			if !trySend(c, payload) {
				stalled = append(stalled, c)
			}
		}
	}
	h.mu.RUnlock()

	h.evict(stalled)
}

// SendToDriver targets exactly the tenant's driver room.
func (h *Hub) SendToDriver(tenantID, driverID uint64, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("realtime: marshal unicast failed: %v", err)
		return
	}

	h.mu.RLock()
	var stalled []*Client
	for c := range h.driverRooms[driverKey{tenantID, driverID}] {
		if !trySend(c, payload) {
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	h.evict(stalled)
}

// trySend enqueues without blocking.  It must be called with h.mu held (read
// is enough): Unregister closes the send channel under the write lock, so a
// send can never race a close.  A full buffer reports false.
func trySend(c *Client, payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// evict removes clients that could not keep up, outside the read lock so
// Unregister can take the write lock.
func (h *Hub) evict(stalled []*Client) {
	for _, c := range stalled {
		log.Printf("realtime: client user=%d send buffer full, evicting", c.UserID)
		h.Unregister(c)
	}
}

// TenantCount reports the live connection count of one tenant room.
func (h *Hub) TenantCount(tenantID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenantRooms[tenantID])
}

// TenantMetric is one row of the metrics payload.
type TenantMetric struct {
	TenantID uint64 `json:"tenant_id"`
	Clients  int    `json:"clients"`
}

// Metrics describes the registry for the admin dashboard.
type Metrics struct {
	IsRunning    bool           `json:"is_running"`
	TotalClients int            `json:"total_clients"`
	ByTenant     []TenantMetric `json:"by_tenant"`
}

// GetMetrics snapshots the registry.
func (h *Hub) GetMetrics() Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m := Metrics{IsRunning: h.running, TotalClients: len(h.clients)}
	for id, room := range h.tenantRooms {
		m.ByTenant = append(m.ByTenant, TenantMetric{TenantID: id, Clients: len(room)})
	}
	return m
}
