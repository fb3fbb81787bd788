package api

import (
	"context"
	"net/http"
	"runtime"
	"time"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 2 * time.Second

// Health status values.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Timestamp     string            `json:"timestamp"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Gate          GateHealth        `json:"gate"`
	Components    map[string]string `json:"components"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	Database      *DatabaseMetrics  `json:"database,omitempty"`
	MQTT          *MQTTMetrics      `json:"mqtt,omitempty"`
}

// GateHealth describes the gate and its actuator.
type GateHealth struct {
	State             string `json:"state"`
	Driver            string `json:"driver"`
	ActuatorAvailable bool   `json:"actuator_available"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// MQTTMetrics describes the broker connection.
type MQTTMetrics struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// handleHealth reports liveness and the state of each dependency. The
// database and actuator are required; MQTT and InfluxDB only degrade.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        statusHealthy,
		Version:       s.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Gate: GateHealth{
			State:             s.service.GateState(ctx).String(),
			Driver:            s.service.DriverName(),
			ActuatorAvailable: s.service.ActuatorAvailable(),
		},
		Components: make(map[string]string),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
	}

	if resp.Gate.ActuatorAvailable {
		resp.Components["actuator"] = statusHealthy
	} else {
		resp.Components["actuator"] = statusUnhealthy
		resp.Status = statusUnhealthy
	}

	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			resp.Components["database"] = statusUnhealthy
			resp.Status = statusUnhealthy
		} else {
			resp.Components["database"] = statusHealthy
		}
		st := s.db.Stats()
		resp.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}

	if s.mqtt != nil {
		resp.MQTT = &MQTTMetrics{
			Connected:     s.mqtt.IsConnected(),
			Subscriptions: s.mqtt.SubscriptionCount(),
		}
		if resp.MQTT.Connected {
			resp.Components["mqtt"] = statusHealthy
		} else {
			resp.Components["mqtt"] = statusDegraded
			resp.degrade()
		}
	}

	if s.influx != nil {
		if err := s.influx.HealthCheck(ctx); err != nil {
			resp.Components["influxdb"] = statusDegraded
			resp.degrade()
		} else {
			resp.Components["influxdb"] = statusHealthy
		}
	}

	status := http.StatusOK
	if resp.Status == statusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *HealthResponse) degrade() {
	if h.Status == statusHealthy {
		h.Status = statusDegraded
	}
}
