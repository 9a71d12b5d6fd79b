package handler

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"posbridge/internal/connmgr"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// POS terminals connect from local networks and native shells, not
	// browsers with a meaningful Origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTransport serializes writes to the socket; gorilla permits only one
// concurrent writer.
type wsTransport struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.c.Close()
}

// WSOrdersHandler upgrades to WebSocket and registers the session for
// tenant broadcasts. Anything the client sends counts as a liveness ping;
// the sweep reaps sessions silent past the staleness threshold.
func WSOrdersHandler(auth POSAuthenticator, hub *connmgr.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := posPrincipal(w, r, auth, r.URL.Query().Get("tenant"))
		if principal == nil {
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "tenant", principal.TenantSlug, "error", err)
			return
		}

		transport := &wsTransport{c: ws}
		conn := hub.Register(principal.TenantSlug, transport)
		defer func() {
			hub.Unregister(principal.TenantSlug, conn.ID)
			_ = ws.Close()
		}()

		slog.Info("websocket opened", "tenant", principal.TenantSlug, "conn_id", conn.ID, "device_id", principal.DeviceID)

		_ = transport.Send(mustJSON(map[string]any{
			"type":      "connected",
			"tenant":    principal.TenantSlug,
			"device_id": principal.DeviceID,
		}))

		ws.SetPongHandler(func(string) error {
			hub.Touch(principal.TenantSlug, conn.ID)
			return nil
		})

		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				slog.Info("websocket closed", "tenant", principal.TenantSlug, "conn_id", conn.ID)
				return
			}
			hub.Touch(principal.TenantSlug, conn.ID)
			if string(msg) == `{"type":"ping"}` || string(msg) == "ping" {
				_ = transport.Send(mustJSON(map[string]any{"type": "pong"}))
			}
		}
	}
}
