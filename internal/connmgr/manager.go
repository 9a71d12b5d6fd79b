// Package connmgr owns the in-process registry of live POS streaming
// sessions (SSE and WebSocket). The registry does not survive a restart
// and does not scale across processes; scaling beyond one instance needs
// an external pub/sub relay in front of it.
package connmgr

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"posbridge/internal/metrics"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultStaleAfter    = 60 * time.Second
)

// Transport is the write side of a live connection. Send must be safe to
// call from the broadcast path while the owning handler is running.
type Transport interface {
	Send(data []byte) error
	Close() error
}

type Conn struct {
	ID        string
	Tenant    string
	transport Transport
	lastPing  time.Time
}

// Manager maps tenant slugs to their live connections. It is the only
// owner of Conn values; handlers interact through Register/Touch/Unregister.
type Manager struct {
	mu      sync.Mutex
	tenants map[string]map[string]*Conn

	nowFunc       func() time.Time
	sweepInterval time.Duration
	staleAfter    time.Duration
}

func New() *Manager {
	return &Manager{
		tenants:       make(map[string]map[string]*Conn),
		nowFunc:       time.Now,
		sweepInterval: defaultSweepInterval,
		staleAfter:    defaultStaleAfter,
	}
}

func (m *Manager) Register(tenant string, t Transport) *Conn {
	conn := &Conn{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		transport: t,
		lastPing:  m.nowFunc(),
	}

	m.mu.Lock()
	conns, ok := m.tenants[tenant]
	if !ok {
		conns = make(map[string]*Conn)
		m.tenants[tenant] = conns
	}
	conns[conn.ID] = conn
	m.mu.Unlock()

	metrics.ActiveConnections.Inc()
	slog.Info("pos connection registered", "tenant", tenant, "conn_id", conn.ID)
	return conn
}

func (m *Manager) Unregister(tenant, connID string) {
	m.mu.Lock()
	conns, ok := m.tenants[tenant]
	if ok {
		if _, present := conns[connID]; present {
			delete(conns, connID)
			metrics.ActiveConnections.Dec()
		}
		if len(conns) == 0 {
			delete(m.tenants, tenant)
		}
	}
	m.mu.Unlock()
}

// Touch refreshes the connection's liveness timestamp.
func (m *Manager) Touch(tenant, connID string) {
	m.mu.Lock()
	if conns, ok := m.tenants[tenant]; ok {
		if conn, ok := conns[connID]; ok {
			conn.lastPing = m.nowFunc()
		}
	}
	m.mu.Unlock()
}

func (m *Manager) Count(tenant string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tenants[tenant])
}

// Broadcast delivers message to every live connection of the tenant and
// returns how many sends succeeded. A failing connection is evicted and
// closed without affecting the rest.
func (m *Manager) Broadcast(tenant string, message any) int {
	data, err := json.Marshal(message)
	if err != nil {
		slog.Error("broadcast marshal failed", "tenant", tenant, "error", err)
		return 0
	}

	m.mu.Lock()
	targets := make([]*Conn, 0, len(m.tenants[tenant]))
	for _, conn := range m.tenants[tenant] {
		targets = append(targets, conn)
	}
	m.mu.Unlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.transport.Send(data); err != nil {
			slog.Warn("broadcast send failed, evicting connection",
				"tenant", tenant, "conn_id", conn.ID, "error", err)
			m.Unregister(tenant, conn.ID)
			_ = conn.transport.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// Sweep removes connections silent for longer than the staleness threshold
// and closes their transports. Returns the number of removed connections.
func (m *Manager) Sweep() int {
	cutoff := m.nowFunc().Add(-m.staleAfter)

	m.mu.Lock()
	var stale []*Conn
	for tenant, conns := range m.tenants {
		for id, conn := range conns {
			if conn.lastPing.Before(cutoff) {
				stale = append(stale, conn)
				delete(conns, id)
				metrics.ActiveConnections.Dec()
			}
		}
		if len(conns) == 0 {
			delete(m.tenants, tenant)
		}
	}
	m.mu.Unlock()

	for _, conn := range stale {
		_ = conn.transport.Close()
		slog.Info("stale pos connection reaped", "tenant", conn.Tenant, "conn_id", conn.ID)
	}
	return len(stale)
}

// Start runs the periodic sweep until ctx is cancelled. Called from main
// at startup; cancellation stops the loop during shutdown.
func (m *Manager) Start(ctx context.Context) {
	slog.Info("starting connection sweeper", "interval", m.sweepInterval, "stale_after", m.staleAfter)
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("connection sweeper stopped")
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Info("sweep removed stale connections", "count", n)
			}
		}
	}
}
