package model

import (
	"time"
)

// Print status lifecycle for an order on its way to a POS terminal.
const (
	PrintStatusPending   = "pending"
	PrintStatusSentToPOS = "sent_to_pos"
	PrintStatusPrinted   = "printed"
	PrintStatusFailed    = "failed"
)

// Order statuses relevant to POS delivery. Orders become visible to
// terminals once confirmed.
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

type Order struct {
	ID                   string      `json:"id"`
	TenantID             string      `json:"tenant_id"`
	OrderNumber          string      `json:"order_number"`
	CustomerName         string      `json:"customer_name"`
	Total                float64     `json:"total"`
	Status               string      `json:"status"`
	PrintStatus          string      `json:"print_status"`
	PrintStatusUpdatedAt *time.Time  `json:"print_status_updated_at,omitempty"`
	LastPOSDeviceID      *string     `json:"last_pos_device_id,omitempty"`
	LastPrintError       *string     `json:"last_print_error,omitempty"`
	WebsocketSent        bool        `json:"websocket_sent"`
	WebsocketSentAt      *time.Time  `json:"websocket_sent_at,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	Items                []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	ID       string  `json:"id"`
	OrderID  string  `json:"order_id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}
