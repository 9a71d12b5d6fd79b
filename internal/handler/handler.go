package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"posbridge/internal/dispatch"
	"posbridge/internal/model"
	"posbridge/internal/service"
)

var validate = validator.New()

// Narrow stores the handlers depend on. The concrete services satisfy
// these; tests swap in fakes.

type TenantStore interface {
	BySlug(ctx context.Context, slug string) (*model.Tenant, error)
}

type OrderDispatchStore interface {
	GetWithItems(ctx context.Context, orderID string) (*model.Order, error)
	MarkSentToPOS(ctx context.Context, orderID string) error
	MarkWebsocketSent(ctx context.Context, orderID string) error
}

type AckStore interface {
	AcknowledgePrint(ctx context.Context, p service.AckParams) (*model.Order, error)
	AppendSyncLog(ctx context.Context, e model.SyncLogEntry) error
	PrintTracking(ctx context.Context, orderID string) (*model.Order, error)
}

type PullStore interface {
	FetchPending(ctx context.Context, tenantID string) ([]model.Order, error)
	CountPending(ctx context.Context, tenantID string) (int, error)
}

type StreamStore interface {
	RecentConfirmed(ctx context.Context, tenantID string, since time.Time) ([]model.Order, error)
}

type StatsStore interface {
	Stats(ctx context.Context, tenantSlug string, from time.Time) (*service.OrderStats, error)
}

type DeviceStore interface {
	Generate(ctx context.Context, tenantSlug, deviceName string) (*model.Device, string, error)
	ListByTenant(ctx context.Context, tenantSlug string) ([]model.Device, error)
	SetActive(ctx context.Context, deviceID string, active bool) error
}

type AdminStore interface {
	Authenticate(ctx context.Context, login, password string) (*model.AdminUser, error)
}

type HealthComputer interface {
	Compute(ctx context.Context, tenantSlug string) (*service.HealthReport, error)
}

type POSAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*service.Principal, error)
}

type OrderDispatcher interface {
	Dispatch(ctx context.Context, tenant *model.Tenant, order *model.Order, overrideURL string) *dispatch.Outcome
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var devMode bool

// SetDevMode controls whether 500 responses expose internal error
// details. Off in production; callers get a generic message.
func SetDevMode(v bool) { devMode = v }

func writeInternalError(w http.ResponseWriter, err error) {
	if devMode && err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

// mustJSON marshals values that cannot fail (maps of encodable types).
func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"error","error":"encode failed"}`)
	}
	return data
}

// apiKeyFromRequest extracts the POS credential: bearer header first,
// query parameter as the fallback for EventSource clients that cannot
// set headers.
func apiKeyFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return r.URL.Query().Get("apiKey")
}
