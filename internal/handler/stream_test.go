package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"posbridge/internal/connmgr"
	"posbridge/internal/model"
)

type fakeStreamStore struct {
	mu     sync.Mutex
	orders []model.Order
	polls  int
}

func (f *fakeStreamStore) RecentConfirmed(ctx context.Context, tenantID string, since time.Time) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.orders, nil
}

func (f *fakeStreamStore) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// sseFrames splits the recorded body into decoded data frames.
func sseFrames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if !strings.HasPrefix(chunk, "data: ") {
			t.Fatalf("frame missing data prefix: %q", chunk)
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(chunk, "data: ")), &event); err != nil {
			t.Fatalf("frame is not valid json: %q: %v", chunk, err)
		}
		frames = append(frames, event)
	}
	return frames
}

func TestStreamOrdersConnectedAndDedup(t *testing.T) {
	oldInterval := ssePollInterval
	ssePollInterval = 10 * time.Millisecond
	defer func() { ssePollInterval = oldInterval }()

	store := &fakeStreamStore{orders: []model.Order{{
		ID:          "o-1",
		TenantID:    "t-1",
		OrderNumber: "ORD-001",
		Status:      model.OrderStatusConfirmed,
		CreatedAt:   time.Now(),
		Items:       []model.OrderItem{{Name: "Margherita", Quantity: 1, Price: 9.75}},
	}}}
	hub := connmgr.New()
	h := StreamOrdersHandler(&fakePOSAuth{principal: kitchenPrincipal()}, store, hub)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet,
		"/api/pos/stream-orders?tenant=kitchen&apiKey=pos_key", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h(rec, req)
		close(done)
	}()

	// Let several poll ticks fire; the same confirmed order keeps coming
	// back from the store each time.
	time.Sleep(120 * time.Millisecond)
	cancel()
	<-done

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if store.pollCount() < 2 {
		t.Fatalf("expected multiple polls, got %d", store.pollCount())
	}

	frames := sseFrames(t, rec.Body.String())
	if len(frames) == 0 {
		t.Fatalf("no frames written")
	}
	if frames[0]["type"] != "connected" || frames[0]["tenant"] != "kitchen" {
		t.Fatalf("first frame must announce the connection: %v", frames[0])
	}

	newOrders := 0
	for _, f := range frames {
		if f["type"] == "new_order" {
			newOrders++
			order, ok := f["order"].(map[string]any)
			if !ok || order["order_number"] != "ORD-001" {
				t.Fatalf("new_order frame missing order body: %v", f)
			}
		}
	}
	if newOrders != 1 {
		t.Fatalf("an order polled repeatedly must be emitted exactly once, got %d new_order frames", newOrders)
	}

	if hub.Count("kitchen") != 0 {
		t.Fatalf("stream must unregister from the hub on close, count=%d", hub.Count("kitchen"))
	}
}

func TestStreamOrdersRequiresAuth(t *testing.T) {
	hub := connmgr.New()
	h := StreamOrdersHandler(&fakePOSAuth{principal: kitchenPrincipal()}, &fakeStreamStore{}, hub)

	req := httptest.NewRequest(http.MethodGet, "/api/pos/stream-orders?tenant=kitchen", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without api key, got %d", rec.Code)
	}
	if hub.Count("kitchen") != 0 {
		t.Fatalf("unauthenticated request must not register a connection")
	}
}
