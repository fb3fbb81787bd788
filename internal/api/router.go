package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/metrics"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(metricsMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/gate_state", s.handleGateState)
		r.Get("/obstruction", s.handleObstruction)

		r.With(s.loginRateLimitMiddleware).Post("/login", s.handleLogin)

		// Token-protected; each handler's service call authorises.
		r.Post("/register", s.handleRegister)
		r.Post("/delete", s.handleDelete)
		r.Get("/list_users", s.handleListUsers)
		r.Get("/open_close_gate", s.handleToggleGate)
		r.Get("/toggle_gate_state", s.handleOverrideState)
		r.Get("/audit", s.handleListAuditLogs)
		r.Post("/ws_ticket", s.handleWSTicket)

		// Auth via ticket, validated in handler.
		r.Get("/ws", s.handleWebSocket)
	})

	if s.metricsCfg.Enabled {
		path := s.metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, s.metricsHandler(metrics.Handler()))
	}

	if s.panel != nil {
		r.Handle("/*", s.panel)
	}

	return r
}

// metricsHandler refreshes pull-style gauges before each scrape.
func (s *Server) metricsHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.db != nil {
			metrics.RecordDBPoolMetrics(s.db.Stats())
		}
		next.ServeHTTP(w, r)
	})
}
