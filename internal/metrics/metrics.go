package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)

	// DispatchTotal counts order dispatch attempts by transport and outcome.
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_dispatch_total",
			Help: "Order dispatch attempts by transport and outcome",
		},
		[]string{"transport", "outcome"},
	)

	// AcksTotal counts print acknowledgments by reported status.
	AcksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_acks_total",
			Help: "Print acknowledgments by status",
		},
		[]string{"status"},
	)

	// ActiveConnections tracks live SSE/WebSocket sessions.
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pos_active_connections",
			Help: "Currently registered POS streaming connections",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(DispatchTotal)
	prometheus.MustRegister(AcksTotal)
	prometheus.MustRegister(ActiveConnections)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush and Hijack pass through so SSE streaming and WebSocket upgrades
// keep working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Middleware records request counts and latency per route pattern.
// Streaming handlers (SSE/WebSocket) hold the connection open, so their
// duration samples reflect session length rather than processing time.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(pattern, r.Method, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(pattern, r.Method).Observe(time.Since(start).Seconds())
	})
}
