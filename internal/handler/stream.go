package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"posbridge/internal/connmgr"
	"posbridge/internal/dispatch"
	"posbridge/internal/model"
)

var ssePollInterval = 2 * time.Second

const (
	sseLookback          = 30 * time.Second
	sseHeartbeatInterval = 15 * time.Second
)

// sseTransport writes data-only SSE frames. Both the handler's poll loop
// and the hub's broadcast path write through it, so sends are serialized
// by the mutex. Close cancels the handler loop; the HTTP response itself
// closes when the handler returns.
type sseTransport struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	f      http.Flusher
	cancel context.CancelFunc
}

func (t *sseTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", data); err != nil {
		return err
	}
	t.f.Flush()
	return nil
}

func (t *sseTransport) Close() error {
	t.cancel()
	return nil
}

// StreamOrdersHandler holds the response open and emits connected,
// new_order, heartbeat, and error events. New orders are discovered by
// polling for confirmed rows created within the lookback window;
// broadcasts from the dispatcher ride the same transport.
func StreamOrdersHandler(auth POSAuthenticator, orders StreamStore, hub *connmgr.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := posPrincipal(w, r, auth, r.URL.Query().Get("tenant"))
		if principal == nil {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		transport := &sseTransport{w: w, f: flusher, cancel: cancel}
		conn := hub.Register(principal.TenantSlug, transport)
		defer hub.Unregister(principal.TenantSlug, conn.ID)

		slog.Info("sse stream opened", "tenant", principal.TenantSlug, "conn_id", conn.ID, "device_id", principal.DeviceID)

		_ = transport.Send(mustJSON(map[string]any{
			"type":      "connected",
			"tenant":    principal.TenantSlug,
			"device_id": principal.DeviceID,
		}))

		seen := make(map[string]time.Time)
		lastHeartbeat := time.Now()

		ticker := time.NewTicker(ssePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("sse stream closed", "tenant", principal.TenantSlug, "conn_id", conn.ID)
				return
			case <-ticker.C:
				now := time.Now()

				recent, err := orders.RecentConfirmed(ctx, principal.TenantID, now.Add(-sseLookback))
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					slog.Error("sse order poll failed", "tenant", principal.TenantSlug, "error", err)
					_ = transport.Send(mustJSON(map[string]any{"type": "error", "error": "order poll failed"}))
					continue
				}

				for _, o := range recent {
					if _, already := seen[o.ID]; already {
						continue
					}
					seen[o.ID] = now
					if err := transport.Send(mustJSON(newOrderEvent(principal.TenantSlug, o, now))); err != nil {
						return
					}
				}

				// Entries past the lookback window can never match again.
				for id, ts := range seen {
					if now.Sub(ts) > 2*sseLookback {
						delete(seen, id)
					}
				}

				if now.Sub(lastHeartbeat) >= sseHeartbeatInterval {
					lastHeartbeat = now
					if err := transport.Send(mustJSON(map[string]any{"type": "heartbeat", "time": now})); err != nil {
						return
					}
				}

				// The server-driven stream is its own liveness signal.
				hub.Touch(principal.TenantSlug, conn.ID)
			}
		}
	}
}

func newOrderEvent(tenantSlug string, o model.Order, now time.Time) map[string]any {
	items := make([]dispatch.ItemInfo, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, dispatch.ItemInfo{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}
	return map[string]any{
		"type": "new_order",
		"order": dispatch.OrderInfo{
			ID:           o.ID,
			OrderNumber:  o.OrderNumber,
			CustomerName: o.CustomerName,
			Total:        o.Total,
			Items:        items,
			CreatedAt:    o.CreatedAt,
		},
		"tenant":  tenantSlug,
		"sent_at": now,
	}
}
