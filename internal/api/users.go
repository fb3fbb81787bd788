package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/gray-logic-gate/internal/auth"
	"github.com/nerrad567/gray-logic-gate/internal/control"
)

// deleteRequest is the body of POST /api/delete. Only entries with Del set
// are removed.
type deleteRequest struct {
	UserData []struct {
		UserID int64 `json:"userid"`
		Del    bool  `json:"del"`
	} `json:"userdata"`
}

// userView is the list_users row.
type userView struct {
	UserID   int64  `json:"userid"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type msgResponse struct {
	Msg string `json:"msg"`
}

// handleRegister creates an account. The capability check runs before the
// body is looked at, so unauthorised callers learn nothing about validation.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if _, err := s.service.Authorize(token, auth.CapManageUsers); err != nil {
		s.writeServiceError(w, r, opRegister, err)
		return
	}

	var in control.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMissingJSON(w)
		return
	}

	if _, err := s.service.RegisterUser(r.Context(), token, in); err != nil {
		s.writeServiceError(w, r, opRegister, err)
		return
	}
	writeJSON(w, http.StatusOK, msgResponse{Msg: "Successfully registered user"})
}

// handleDelete removes every selected account in one transaction.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if _, err := s.service.Authorize(token, auth.CapManageUsers); err != nil {
		s.writeServiceError(w, r, opDefault, err)
		return
	}

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMissingJSON(w)
		return
	}

	var ids []int64
	for _, u := range req.UserData {
		if u.Del {
			ids = append(ids, u.UserID)
		}
	}

	if err := s.service.DeleteUsers(r.Context(), token, ids); err != nil {
		s.writeServiceError(w, r, opDefault, err)
		return
	}
	writeJSON(w, http.StatusOK, msgResponse{Msg: "Successfully deleted user(s)"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context(), bearerToken(r))
	if err != nil {
		s.writeServiceError(w, r, opDefault, err)
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{UserID: u.ID, Username: u.Username, Role: string(u.Role)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": views})
}
