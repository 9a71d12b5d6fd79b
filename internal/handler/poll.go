package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"posbridge/internal/service"
)

// posPrincipal authenticates a POS request and enforces that the resolved
// principal matches the tenant named in the request. Returns nil after
// writing the error response when authentication fails.
func posPrincipal(w http.ResponseWriter, r *http.Request, auth POSAuthenticator, tenantSlug string) *service.Principal {
	apiKey := apiKeyFromRequest(r)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "missing api key")
		return nil
	}
	if tenantSlug == "" {
		writeError(w, http.StatusBadRequest, "tenant is required")
		return nil
	}

	principal, err := auth.Authenticate(r.Context(), apiKey)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAPIKey) {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return nil
		}
		slog.Error("pos authentication failed", "error", err)
		writeInternalError(w, err)
		return nil
	}
	if principal.TenantSlug != tenantSlug {
		writeError(w, http.StatusForbidden, "api key does not belong to this tenant")
		return nil
	}
	return principal
}

// PendingOrdersHandler is the pull path: confirmed orders not yet
// delivered, claimed as sent_to_pos on the way out.
func PendingOrdersHandler(auth POSAuthenticator, orders PullStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := posPrincipal(w, r, auth, r.URL.Query().Get("tenant"))
		if principal == nil {
			return
		}

		pending, err := orders.FetchPending(r.Context(), principal.TenantID)
		if err != nil {
			slog.Error("pending fetch failed", "tenant", principal.TenantSlug, "error", err)
			writeInternalError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"count":   len(pending),
			"orders":  pending,
		})
	}
}

// HeartbeatHandler gives pull-based terminals an explicit liveness touch.
// Authentication already refreshes last_seen/last_heartbeat; the response
// tells the device how much work is waiting.
func HeartbeatHandler(auth POSAuthenticator, orders PullStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := r.URL.Query().Get("tenant")
		if tenant == "" {
			var req struct {
				Tenant string `json:"tenant"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			tenant = req.Tenant
		}

		principal := posPrincipal(w, r, auth, tenant)
		if principal == nil {
			return
		}

		pending, err := orders.CountPending(r.Context(), principal.TenantID)
		if err != nil {
			slog.Error("pending count failed", "tenant", principal.TenantSlug, "error", err)
			writeInternalError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"device_id":      principal.DeviceID,
			"pending_orders": pending,
		})
	}
}
