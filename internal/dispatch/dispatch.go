// Package dispatch delivers newly created orders to a tenant's POS. A
// tenant with a configured webhook gets a single outbound POST; everyone
// else gets a broadcast to whatever live connections exist, with the
// pull endpoint as the safety net.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"posbridge/internal/model"
)

const webhookTimeout = 10 * time.Second

const (
	TransportWebhook   = "webhook"
	TransportBroadcast = "broadcast"
)

type TenantInfo struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type ItemInfo struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type OrderInfo struct {
	ID           string     `json:"id"`
	OrderNumber  string     `json:"order_number"`
	CustomerName string     `json:"customer_name"`
	Total        float64    `json:"total"`
	Items        []ItemInfo `json:"items"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Payload is the full order frame a POS receives, identical across the
// webhook, broadcast, and pull transports.
type Payload struct {
	Type   string     `json:"type"`
	Tenant TenantInfo `json:"tenant"`
	Order  OrderInfo  `json:"order"`
	SentAt time.Time  `json:"sent_at"`
}

func BuildPayload(tenant *model.Tenant, order *model.Order, now time.Time) Payload {
	items := make([]ItemInfo, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, ItemInfo{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}
	return Payload{
		Type:   "new_order",
		Tenant: TenantInfo{Slug: tenant.Slug, Name: tenant.Name},
		Order: OrderInfo{
			ID:           order.ID,
			OrderNumber:  order.OrderNumber,
			CustomerName: order.CustomerName,
			Total:        order.Total,
			Items:        items,
			CreatedAt:    order.CreatedAt,
		},
		SentAt: now,
	}
}

// Outcome reports how a dispatch went. On webhook failure the prepared
// payload is still populated so the caller can queue or retry it
// externally; the dispatcher itself never retries.
type Outcome struct {
	Delivered     bool
	Transport     string
	WebhookStatus *int
	Connections   int
	Error         string
	Payload       Payload
}

type WebhookClient struct {
	client *http.Client
}

func NewWebhookClient() *WebhookClient {
	return &WebhookClient{client: &http.Client{Timeout: webhookTimeout}}
}

// Post sends the payload to the webhook URL with a bearer secret. Non-2xx
// responses are errors; the status code is returned when one was received.
func (c *WebhookClient) Post(ctx context.Context, url, secret string, payload Payload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Broadcaster is the live-connection fan-out the dispatcher falls back to.
type Broadcaster interface {
	Broadcast(tenant string, message any) int
}

type Dispatcher struct {
	webhook *WebhookClient
	hub     Broadcaster
	nowFunc func() time.Time
}

func New(hub Broadcaster) *Dispatcher {
	return &Dispatcher{
		webhook: NewWebhookClient(),
		hub:     hub,
		nowFunc: time.Now,
	}
}

// Dispatch attempts delivery of one order. overrideURL, when set, takes
// precedence over the tenant's configured webhook. Single attempt,
// fire-and-report.
func (d *Dispatcher) Dispatch(ctx context.Context, tenant *model.Tenant, order *model.Order, overrideURL string) *Outcome {
	payload := BuildPayload(tenant, order, d.nowFunc())

	url := overrideURL
	if url == "" && tenant.POSWebhookURL != nil {
		url = *tenant.POSWebhookURL
	}

	if url != "" {
		secret := ""
		if tenant.WebhookSecret != nil {
			secret = *tenant.WebhookSecret
		}
		status, err := d.webhook.Post(ctx, url, secret, payload)
		outcome := &Outcome{Transport: TransportWebhook, Payload: payload}
		if status != 0 {
			outcome.WebhookStatus = &status
		}
		if err != nil {
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Delivered = true
		return outcome
	}

	delivered := d.hub.Broadcast(tenant.Slug, payload)
	return &Outcome{
		Delivered:   true,
		Transport:   TransportBroadcast,
		Connections: delivered,
		Payload:     payload,
	}
}
