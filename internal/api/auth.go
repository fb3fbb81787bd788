package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-gate/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// loginRequest is the request body for POST /api/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /api/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ticketResponse is the response body for POST /api/ws_ticket.
type ticketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

// handleLogin exchanges credentials for an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMissingJSON(w)
		return
	}

	token, err := s.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeServiceError(w, r, opLogin, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.service.TokenTTL().Seconds()),
	})
}

// handleWSTicket issues a single-use ticket for the WebSocket upgrade.
// Browsers cannot set headers on WebSocket requests, so the bearer token is
// traded here for a short-lived query parameter.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	id, err := s.service.Authorize(bearerToken(r), auth.CapOpenCloseGate)
	if err != nil {
		s.writeServiceError(w, r, opDefault, err)
		return
	}

	ticket, err := s.tickets.issue(*id)
	if err != nil {
		s.logger.Error("generating websocket ticket failed", "error", err)
		writeInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, ticketResponse{
		Ticket:    ticket,
		ExpiresIn: int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
	now     func() time.Time
}

type ticketEntry struct {
	identity  auth.Identity
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		tickets: make(map[string]ticketEntry),
		now:     time.Now,
	}
}

// issue stores a fresh random ticket bound to id.
func (ts *ticketStore) issue(id auth.Identity) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	ticket := hex.EncodeToString(b)

	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{identity: id, expiresAt: ts.now().Add(ticketTTL)}
	ts.mu.Unlock()

	return ticket, nil
}

// redeem consumes a ticket. A ticket is removed on first use even if it
// has expired.
func (ts *ticketStore) redeem(ticket string) (auth.Identity, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return auth.Identity{}, false
	}
	delete(ts.tickets, ticket)

	if ts.now().After(entry.expiresAt) {
		return auth.Identity{}, false
	}
	return entry.identity, true
}

// sweep removes expired tickets.
func (ts *ticketStore) sweep() {
	now := ts.now()

	ts.mu.Lock()
	defer ts.mu.Unlock()
	for k, v := range ts.tickets {
		if now.After(v.expiresAt) {
			delete(ts.tickets, k)
		}
	}
}

func (ts *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts.sweep()
		}
	}
}
