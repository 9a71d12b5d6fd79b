package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"posbridge/internal/metrics"
	"posbridge/internal/model"
	"posbridge/internal/service"
)

type ackRequest struct {
	Tenant    string  `json:"tenant" validate:"required"`
	OrderID   string  `json:"order_id" validate:"required"`
	Status    string  `json:"status" validate:"required,oneof=printed failed"`
	PrintedAt string  `json:"printed_at"`
	DeviceID  *string `json:"device_id"`
	Reason    *string `json:"reason"`
}

// AckHandler records a POS print acknowledgment. Device keys are tried
// before legacy tenant keys; a principal resolving to a different tenant
// than the one named in the body is a hard failure.
func AckHandler(auth POSAuthenticator, orders AckStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := apiKeyFromRequest(r)
		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		var req ackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "tenant, order_id and status (printed|failed) are required")
			return
		}

		principal, err := auth.Authenticate(r.Context(), apiKey)
		if err != nil {
			if errors.Is(err, service.ErrInvalidAPIKey) {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			slog.Error("pos authentication failed", "error", err)
			writeInternalError(w, err)
			return
		}
		if principal.TenantSlug != req.Tenant {
			writeError(w, http.StatusForbidden, "api key does not belong to this tenant")
			return
		}

		printedAt := time.Now()
		if req.PrintedAt != "" {
			ts, err := time.Parse(time.RFC3339, req.PrintedAt)
			if err != nil {
				writeError(w, http.StatusBadRequest, "printed_at must be RFC3339")
				return
			}
			printedAt = ts
		}

		// The authenticated device identity wins over anything the
		// caller claims.
		deviceID := req.DeviceID
		if principal.DeviceID != "" {
			deviceID = &principal.DeviceID
		}

		order, err := orders.AcknowledgePrint(r.Context(), service.AckParams{
			TenantID:  principal.TenantID,
			OrderID:   req.OrderID,
			Status:    req.Status,
			PrintedAt: printedAt,
			DeviceID:  deviceID,
			Reason:    req.Reason,
		})
		if err != nil {
			if errors.Is(err, service.ErrOrderNotFound) {
				writeError(w, http.StatusNotFound, "order not found")
				return
			}
			slog.Error("print acknowledgment failed", "order_id", req.OrderID, "error", err)
			writeInternalError(w, err)
			return
		}

		// Audit trail write is best-effort: a logging hiccup must not
		// fail the acknowledgment itself.
		payload, _ := json.Marshal(map[string]any{
			"status":     req.Status,
			"device_id":  deviceID,
			"reason":     req.Reason,
			"printed_at": printedAt,
		})
		logErr := orders.AppendSyncLog(r.Context(), model.SyncLogEntry{
			TenantID:  principal.TenantID,
			OrderID:   req.OrderID,
			EventType: model.EventPrintAcknowledgment,
			Status:    req.Status,
			Payload:   payload,
		})
		if logErr != nil {
			slog.Error("sync log write failed", "order_id", req.OrderID, "error", logErr)
		}

		metrics.AcksTotal.WithLabelValues(req.Status).Inc()

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"order": map[string]any{
				"order_number": order.OrderNumber,
				"print_status": order.PrintStatus,
				"updated_at":   order.PrintStatusUpdatedAt,
				"device_id":    order.LastPOSDeviceID,
			},
		})
	}
}

// AckDebugHandler is the read side: current print-tracking fields for one
// order, for POS integrators chasing a stuck ticket.
func AckDebugHandler(auth POSAuthenticator, orders AckStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := apiKeyFromRequest(r)
		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		orderID := r.URL.Query().Get("order_id")
		if orderID == "" {
			writeError(w, http.StatusBadRequest, "order_id is required")
			return
		}

		principal, err := auth.Authenticate(r.Context(), apiKey)
		if err != nil {
			if errors.Is(err, service.ErrInvalidAPIKey) {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			slog.Error("pos authentication failed", "error", err)
			writeInternalError(w, err)
			return
		}

		order, err := orders.PrintTracking(r.Context(), orderID)
		if err != nil {
			if errors.Is(err, service.ErrOrderNotFound) {
				writeError(w, http.StatusNotFound, "order not found")
				return
			}
			slog.Error("print tracking read failed", "order_id", orderID, "error", err)
			writeInternalError(w, err)
			return
		}
		if order.TenantID != principal.TenantID {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"order_id":                orderID,
			"order_number":            order.OrderNumber,
			"print_status":            order.PrintStatus,
			"print_status_updated_at": order.PrintStatusUpdatedAt,
			"last_pos_device_id":      order.LastPOSDeviceID,
			"last_print_error":        order.LastPrintError,
			"websocket_sent":          order.WebsocketSent,
			"websocket_sent_at":       order.WebsocketSentAt,
		})
	}
}
