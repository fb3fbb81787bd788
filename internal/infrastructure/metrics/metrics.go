// Package metrics provides Prometheus metrics definitions for Gray Logic Gate.
//
// Collectors live on Registry rather than the global default registry so
// that /metrics exposes exactly what this process defines.
package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graygate"

// Registry holds every collector below plus the Go and process collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	// HTTPRequestDuration tracks HTTP request latency by route pattern.
	HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// GateActuations counts pulse attempts by driver and result.
	GateActuations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "actuations_total",
			Help:      "Actuation attempts by driver and result",
		},
		[]string{"driver", "result"},
	)

	// GateActuationDuration tracks how long a pulse held the actuation lock.
	GateActuationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "actuation_duration_seconds",
			Help:      "Time spent inside the actuator driver per attempt",
			Buckets:   []float64{.01, .1, .5, 1, 2, 4, 5, 8, 15},
		},
		[]string{"driver"},
	)

	// GateState exposes the current logical state code (0 closed, 1 open, 2 opening, 3 closing).
	GateState = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "state",
			Help:      "Current logical gate state code",
		},
	)

	// GateOverrides counts administrative state corrections.
	GateOverrides = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "overrides_total",
			Help:      "Administrative state overrides",
		},
	)

	// LoginAttempts counts logins by outcome: success, invalid, throttled.
	LoginAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AuthorizationFailures counts rejected tokens by reason.
	AuthorizationFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "authorization_failures_total",
			Help:      "Rejected authorizations by reason",
		},
		[]string{"reason"},
	)

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		},
	)

	// ActuatorAvailable is 1 while the configured driver reports itself usable.
	ActuatorAvailable = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "actuator",
			Name:      "available",
			Help:      "Whether the actuator driver is currently reachable",
		},
		[]string{"driver"},
	)

	// DBPoolConnections tracks database connection pool state.
	DBPoolConnections = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)
)

// RecordDBPoolMetrics updates database pool metrics from sql.DBStats.
func RecordDBPoolMetrics(stats sql.DBStats) {
	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxOpenConnections))
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
