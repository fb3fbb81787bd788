package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-gate/internal/auth"
	"github.com/nerrad567/gray-logic-gate/internal/gate"
)

// stateResponse reports a gate state by name and numeric code.
type stateResponse struct {
	Msg   string `json:"msg,omitempty"`
	State string `json:"state"`
	Code  int    `json:"code"`
}

// handleToggleGate pulses the relay. The response is written only after
// the dwell completes.
func (s *Server) handleToggleGate(w http.ResponseWriter, r *http.Request) {
	action, err := s.service.ToggleGate(r.Context(), bearerToken(r))
	if err != nil {
		s.writeServiceError(w, r, opDefault, err)
		return
	}
	writeJSON(w, http.StatusOK, msgResponse{Msg: "Successfully " + string(action) + " gate"})
}

// handleOverrideState corrects the logical state without moving the gate.
// With ?state=open|closed the state is set; without it, it is flipped.
func (s *Server) handleOverrideState(w http.ResponseWriter, r *http.Request) {
	var desired *gate.State
	if v := r.URL.Query().Get("state"); v != "" {
		st, err := gate.ParseState(v)
		if err != nil {
			// Authorisation still comes first.
			if _, authErr := s.service.Authorize(bearerToken(r), auth.CapToggleStateOverride); authErr != nil {
				s.writeServiceError(w, r, opDefault, authErr)
				return
			}
			s.writeServiceError(w, r, opDefault, err)
			return
		}
		desired = &st
	}

	change, err := s.service.OverrideState(r.Context(), bearerToken(r), desired)
	if err != nil {
		s.writeServiceError(w, r, opDefault, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{
		Msg:   "Gate state set to " + change.To.String(),
		State: change.To.String(),
		Code:  int(change.To),
	})
}

func (s *Server) handleGateState(w http.ResponseWriter, r *http.Request) {
	st := s.service.GateState(r.Context())
	writeJSON(w, http.StatusOK, stateResponse{State: st.String(), Code: int(st)})
}

func (s *Server) handleObstruction(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, msgResponse{Msg: s.service.Obstruction(r.Context())})
}
