package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"posbridge/internal/dispatch"
	"posbridge/internal/metrics"
	"posbridge/internal/service"
)

type pushOrderRequest struct {
	TenantID      string `json:"tenantId" validate:"required"`
	OrderID       string `json:"orderId" validate:"required"`
	POSWebhookURL string `json:"posWebhookUrl"`
}

type pushOrderResponse struct {
	Success       bool             `json:"success"`
	Transport     string           `json:"transport"`
	WebhookStatus *int             `json:"webhookStatus,omitempty"`
	Connections   *int             `json:"connections,omitempty"`
	Error         string           `json:"error,omitempty"`
	Payload       dispatch.Payload `json:"payload"`
}

// PushOrderHandler dispatches one order to the tenant's POS. The caller
// must present a POS credential for the target tenant; the payload and
// the webhook override are never handed to anonymous callers. On webhook
// failure the prepared payload is returned with the error so the caller
// can retry or queue it; nothing is retried here.
func PushOrderHandler(auth POSAuthenticator, tenants TenantStore, orders OrderDispatchStore, dispatcher OrderDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pushOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "tenantId and orderId are required")
			return
		}

		principal := posPrincipal(w, r, auth, req.TenantID)
		if principal == nil {
			return
		}

		tenant, err := tenants.BySlug(r.Context(), req.TenantID)
		if err != nil {
			if errors.Is(err, service.ErrTenantNotFound) {
				writeError(w, http.StatusNotFound, "tenant not found")
				return
			}
			slog.Error("tenant lookup failed", "error", err)
			writeInternalError(w, err)
			return
		}

		order, err := orders.GetWithItems(r.Context(), req.OrderID)
		if err != nil {
			if errors.Is(err, service.ErrOrderNotFound) {
				writeError(w, http.StatusNotFound, "order not found")
				return
			}
			slog.Error("order lookup failed", "error", err)
			writeInternalError(w, err)
			return
		}
		if order.TenantID != tenant.ID {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}

		outcome := dispatcher.Dispatch(r.Context(), tenant, order, req.POSWebhookURL)

		resp := pushOrderResponse{
			Success:       outcome.Delivered,
			Transport:     outcome.Transport,
			WebhookStatus: outcome.WebhookStatus,
			Error:         outcome.Error,
			Payload:       outcome.Payload,
		}

		switch outcome.Transport {
		case dispatch.TransportWebhook:
			if !outcome.Delivered {
				metrics.DispatchTotal.WithLabelValues(outcome.Transport, "failure").Inc()
				writeJSON(w, http.StatusInternalServerError, resp)
				return
			}
			if err := orders.MarkSentToPOS(r.Context(), order.ID); err != nil {
				slog.Error("failed to mark order sent_to_pos", "order_id", order.ID, "error", err)
			}
		case dispatch.TransportBroadcast:
			resp.Connections = &outcome.Connections
			if err := orders.MarkWebsocketSent(r.Context(), order.ID); err != nil {
				slog.Error("failed to mark websocket_sent", "order_id", order.ID, "error", err)
			}
		}

		metrics.DispatchTotal.WithLabelValues(outcome.Transport, "success").Inc()
		writeJSON(w, http.StatusOK, resp)
	}
}
