package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-gate/internal/control"
	"github.com/nerrad567/gray-logic-gate/internal/gate"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown. It exceeds the relay dwell so that a toggle
// in progress can still answer.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Metrics  config.MetricsConfig
	Logger   *logging.Logger
	Service  *control.Service

	// Optional; reported by /api/health when set.
	DB     *database.DB
	MQTT   *mqtt.Client
	Influx *influxdb.Client

	// Panel, when set, serves the control page for every non-API path.
	Panel http.Handler

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	metricsCfg config.MetricsConfig
	logger     *logging.Logger
	service    *control.Service
	db         *database.DB
	mqtt       *mqtt.Client
	influx     *influxdb.Client
	panel      http.Handler
	version    string
	startTime  time.Time

	server  *http.Server
	hub     *Hub
	tickets *ticketStore
	limiter *loginLimiter

	cancel      context.CancelFunc // cancels background goroutines on Close()
	unsubscribe func()
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("control service is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		metricsCfg: deps.Metrics,
		logger:     deps.Logger.With("component", "api"),
		service:    deps.Service,
		db:         deps.DB,
		mqtt:       deps.MQTT,
		influx:     deps.Influx,
		panel:      deps.Panel,
		version:    deps.Version,
		startTime:  time.Now(),
		tickets:    newTicketStore(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	if deps.Security.RateLimit.Enabled {
		s.limiter = newLoginLimiter(deps.Security.RateLimit)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays gate state changes to WebSocket
// clients, and launches the HTTP listener in a background goroutine. The
// server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)
	if s.limiter != nil {
		go s.limiter.cleanLoop(srvCtx)
	}

	s.unsubscribe = s.service.OnGateChange(s.broadcastGateChange)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// gateEvent is the WebSocket payload for ChannelGateState.
type gateEvent struct {
	State    string    `json:"state"`
	Code     int       `json:"code"`
	From     string    `json:"from"`
	Actor    string    `json:"actor,omitempty"`
	Override bool      `json:"override,omitempty"`
	At       time.Time `json:"at"`
}

// broadcastGateChange runs under the gate's actuation lock; Broadcast never
// blocks on slow clients.
func (s *Server) broadcastGateChange(c gate.Change) {
	s.hub.Broadcast(ChannelGateState, gateEvent{
		State:    c.To.String(),
		Code:     int(c.To),
		From:     c.From.String(),
		Actor:    c.Actor,
		Override: c.Override,
		At:       c.At,
	})
}
