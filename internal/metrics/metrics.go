// Package metrics exposes Prometheus collectors for the launcher.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shutdown request outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

var (
	serverState                *prometheus.GaugeVec
	stateTransitionsTotal      *prometheus.CounterVec
	shutdownRequestsTotal      *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		serverState = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "launcher_server_state",
				Help: "Current lifecycle state of the embedded server; 1 for the active state.",
			},
			[]string{"state"},
		)

		stateTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launcher_state_transitions_total",
				Help: "Total number of lifecycle state transitions, labeled by target state.",
			},
			[]string{"state"},
		)

		shutdownRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launcher_shutdown_requests_total",
				Help: "Total number of remote shutdown requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetServerState marks state as the active one among all known states.
func SetServerState(state string, known []string) {
	Init()
	for _, s := range known {
		v := 0.0
		if s == state {
			v = 1
		}
		serverState.WithLabelValues(s).Set(v)
	}
}

// ObserveStateTransition counts a lifecycle transition into state.
func ObserveStateTransition(state string) {
	Init()
	stateTransitionsTotal.WithLabelValues(state).Inc()
}

// ObserveShutdownRequest counts a remote shutdown request by outcome.
func ObserveShutdownRequest(outcome string) {
	Init()
	shutdownRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
