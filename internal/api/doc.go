// Package api implements the HTTP API and WebSocket server for the gate
// panel.
//
// Routes mirror the original panel front end: POST /api/login, POST
// /api/register, POST /api/delete, GET /api/list_users, GET
// /api/open_close_gate, GET /api/toggle_gate_state, GET /api/gate_state and
// GET /api/obstruction, plus audit, health, WebSocket and Prometheus
// endpoints.
//
// # Errors
//
// Every failure uses one envelope:
//
//	{"status": 40003, "message": "Invalid username or password", "ext": 1}
//
// HTTP 400 carries all request-level errors, 429 throttled logins and 500
// internal faults. The numeric status distinguishes the cause; see the
// Code* constants. Service errors are translated in exactly one place,
// writeServiceError.
//
// # Security
//
// Identity tokens travel in the Authorization header as Bearer tokens and
// are re-validated on every request by the control service. WebSocket
// connections use single-use tickets so tokens never appear in URLs.
package api
