package model

import (
	"encoding/json"
	"time"
)

const EventPrintAcknowledgment = "print_acknowledgment"

// SyncLogEntry is an append-only audit record of a POS sync event.
// Rows are written once and never updated.
type SyncLogEntry struct {
	ID        int64           `json:"id"`
	TenantID  string          `json:"tenant_id"`
	OrderID   string          `json:"order_id"`
	EventType string          `json:"event_type"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
