package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-gate/internal/actuator"
	"github.com/nerrad567/gray-logic-gate/internal/auth"
	"github.com/nerrad567/gray-logic-gate/internal/control"
	"github.com/nerrad567/gray-logic-gate/internal/gate"
)

// envelopeExt marks responses produced by this API for the front end.
const envelopeExt = 1

// Error is the error envelope.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Ext     int    `json:"ext"`
}

// Error codes carried in Error.Status.
const (
	CodeMissingJSON          = 400
	CodeLoginUsernameMissing = 40001
	CodeLoginPasswordMissing = 40002
	CodeInvalidCredentials   = 40003
	CodeRegUsernameMissing   = 40004
	CodeRegPasswordMissing   = 40005
	CodeRegRoleMissing       = 40006
	CodeForbidden            = 40007
	CodeDuplicateUser        = 40008
	CodeTokenInvalid         = 40009
	CodeTokenExpired         = 40010
	CodeDriverUnavailable    = 40011
	CodeTransport            = 40012
	CodeUserNotFound         = 40013
	CodeInvalidUserField     = 40014
	CodeInvalidGateState     = 40015
	CodeGateBusy             = 40016
	CodeTooManyRequests      = 42900
	CodeInternal             = 50000
)

// operation selects per-route codes for errors shared between routes.
type operation int

const (
	opDefault operation = iota
	opLogin
	opRegister
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes the error envelope.
func writeError(w http.ResponseWriter, httpStatus, code int, message string) {
	writeJSON(w, httpStatus, Error{Status: code, Message: message, Ext: envelopeExt})
}

// writeBadRequest writes a 400 envelope.
func writeBadRequest(w http.ResponseWriter, code int, message string) {
	writeError(w, http.StatusBadRequest, code, message)
}

// writeMissingJSON reports an absent or undecodable body.
func writeMissingJSON(w http.ResponseWriter) {
	writeBadRequest(w, CodeMissingJSON, "Missing JSON")
}

// writeInternalError writes a 500 envelope.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, CodeInternal, message)
}

// classify maps a service error to its envelope code and message. ok is
// false for errors that are not request-level (internal faults).
func classify(err error, op operation) (code int, message string, ok bool) {
	switch {
	case errors.Is(err, control.ErrMissingUsername):
		if op == opRegister {
			return CodeRegUsernameMissing, "Username is missing", true
		}
		return CodeLoginUsernameMissing, "Username is missing", true
	case errors.Is(err, control.ErrMissingPassword):
		if op == opRegister {
			return CodeRegPasswordMissing, "Password is missing", true
		}
		return CodeLoginPasswordMissing, "Password is missing", true
	case errors.Is(err, control.ErrMissingRole):
		return CodeRegRoleMissing, "Role is missing", true
	case errors.Is(err, control.ErrNoUsersSelected):
		return CodeMissingJSON, "No users selected", true

	case errors.Is(err, auth.ErrInvalidCredentials):
		return CodeInvalidCredentials, "Invalid username or password", true
	case errors.Is(err, auth.ErrTokenExpired):
		return CodeTokenExpired, "Token has expired", true
	case errors.Is(err, auth.ErrTokenMissing):
		return CodeTokenInvalid, "Missing authorization token", true
	case errors.Is(err, auth.ErrTokenInvalid):
		return CodeTokenInvalid, "Invalid token", true
	case errors.Is(err, auth.ErrForbidden):
		return CodeForbidden, "You don't have authority to perform this action", true
	case errors.Is(err, auth.ErrUsernameExists):
		return CodeDuplicateUser, "User is already registered", true
	case errors.Is(err, auth.ErrUserNotFound):
		return CodeUserNotFound, "User not found", true
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidRole):
		return CodeInvalidUserField, err.Error(), true

	case errors.Is(err, actuator.ErrDriverUnavailable):
		return CodeDriverUnavailable, err.Error(), true
	case errors.Is(err, actuator.ErrTransport):
		return CodeTransport, err.Error(), true

	case errors.Is(err, gate.ErrInvalidState):
		return CodeInvalidGateState, "Invalid gate state, use open or closed", true
	case errors.Is(err, gate.ErrInTransit):
		return CodeGateBusy, "Gate is busy", true
	}
	return CodeInternal, "Internal server error", false
}

// writeServiceError is the single translation point from service errors
// to HTTP responses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op operation, err error) {
	code, message, ok := classify(err, op)
	if !ok {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, message)
		return
	}
	writeBadRequest(w, code, message)
}
