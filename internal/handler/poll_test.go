package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"posbridge/internal/model"
)

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(raw)
}

type fakePullStore struct {
	pending []model.Order
	fetched int
	count   int
}

func (f *fakePullStore) FetchPending(ctx context.Context, tenantID string) ([]model.Order, error) {
	f.fetched++
	return f.pending, nil
}

func (f *fakePullStore) CountPending(ctx context.Context, tenantID string) (int, error) {
	return f.count, nil
}

func TestPendingOrdersRequiresAuth(t *testing.T) {
	store := &fakePullStore{}
	h := PendingOrdersHandler(&fakePOSAuth{principal: kitchenPrincipal()}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/pos/orders/pending?tenant=kitchen", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without api key, got %d", rec.Code)
	}
	if store.fetched != 0 {
		t.Fatalf("unauthenticated pull must not hit the store")
	}
}

func TestPendingOrdersTenantMismatch(t *testing.T) {
	h := PendingOrdersHandler(&fakePOSAuth{principal: kitchenPrincipal()}, &fakePullStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/pos/orders/pending?tenant=bakery", nil)
	req.Header.Set("Authorization", "Bearer pos_key")
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for tenant mismatch, got %d", rec.Code)
	}
}

func TestPendingOrdersReturnsBatch(t *testing.T) {
	store := &fakePullStore{pending: []model.Order{
		{ID: "o-1", OrderNumber: "ORD-001", PrintStatus: model.PrintStatusSentToPOS, CreatedAt: time.Now()},
		{ID: "o-2", OrderNumber: "ORD-002", PrintStatus: model.PrintStatusSentToPOS, CreatedAt: time.Now()},
	}}
	h := PendingOrdersHandler(&fakePOSAuth{principal: kitchenPrincipal()}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/pos/orders/pending?tenant=kitchen", nil)
	req.Header.Set("Authorization", "Bearer pos_key")
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Success bool          `json:"success"`
		Count   int           `json:"count"`
		Orders  []model.Order `json:"orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Count != 2 || len(resp.Orders) != 2 {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}

func TestHeartbeatReportsPendingCount(t *testing.T) {
	store := &fakePullStore{count: 4}
	h := HeartbeatHandler(&fakePOSAuth{principal: kitchenPrincipal()}, store)

	req := httptest.NewRequest(http.MethodPost, "/api/pos/heartbeat",
		jsonBody(t, map[string]string{"tenant": "kitchen"}))
	req.Header.Set("Authorization", "Bearer pos_key")
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Success       bool   `json:"success"`
		DeviceID      string `json:"device_id"`
		PendingOrders int    `json:"pending_orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.DeviceID != "KITCHEN-ABC" || resp.PendingOrders != 4 {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}
