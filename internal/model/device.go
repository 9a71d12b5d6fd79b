package model

import "time"

// Device is a registered POS terminal. Devices are never hard-deleted;
// deactivation hides them while keeping their acknowledgment history.
type Device struct {
	DeviceID        string     `json:"device_id"`
	TenantID        string     `json:"tenant_id"`
	DeviceName      string     `json:"device_name"`
	APIKeyPrefix    string     `json:"api_key_prefix"`
	IsActive        bool       `json:"is_active"`
	LastSeenAt      *time.Time `json:"last_seen_at,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
