// Package metrics provides Prometheus instrumentation for the policy engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts engine operations, partitioned by kind and result.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "policy_operations_total",
		Help: "Total engine operations executed",
	}, []string{"kind", "result"})

	// OperationLatency tracks engine operation latency by kind.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "policy_operation_latency_seconds",
		Help:    "Engine operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// CurrentEpoch tracks the treasury's epoch counter.
	CurrentEpoch = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "policy_current_epoch",
		Help: "Current treasury epoch",
	})

	// Reserve tracks accumulated seigniorage earmarked for redemptions.
	Reserve = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "policy_reserve",
		Help: "Accumulated seigniorage reserve",
	})

	// TotalStaked tracks the boardroom's staked principal.
	TotalStaked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "policy_total_staked",
		Help: "Total share tokens staked in the boardroom",
	})

	// OraclePrice tracks the last consulted price.
	OraclePrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "policy_oracle_price",
		Help: "Last oracle price for one unit of the pegged asset",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "policy_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "policy_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "policy_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
