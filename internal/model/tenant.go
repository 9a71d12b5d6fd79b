package model

import "time"

// Tenant is a restaurant account, the unit of data isolation.
type Tenant struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	APIKey        string    `json:"-"`
	POSWebhookURL *string   `json:"pos_webhook_url,omitempty"`
	WebhookSecret *string   `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}
