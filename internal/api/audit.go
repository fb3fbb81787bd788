package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-gate/internal/audit"
)

// handleListAuditLogs returns paginated audit log entries with optional filters.
//
// Query parameters:
//   - action: filter by action type (login, register, delete, toggle, override)
//   - actor: filter by acting username
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action: q.Get("action"),
		Actor:  q.Get("actor"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.service.AuditLog(r.Context(), bearerToken(r), filter)
	if err != nil {
		s.writeServiceError(w, r, opDefault, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
