// Package queue defines message payloads exchanged over the message broker.
package queue

// PickupStatusEvent is published whenever a pickup changes state.  It
// carries enough context for downstream consumers to notify connected
// clients without querying the tenant database.
type PickupStatusEvent struct {
	TenantID     uint64  `json:"tenant_id"`
	TenantSchema string  `json:"tenant_schema"`
	PickupID     uint64  `json:"pickup_id"`
	DriverID     *uint64 `json:"driver_id,omitempty"`
	Status       string  `json:"status"`
	CustomerName string  `json:"customer_name,omitempty"`
	Address      string  `json:"address,omitempty"`
	ChangedBy    uint64  `json:"changed_by"`
	ChangedAt    string  `json:"changed_at"`
}
