package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/homedash-core/internal/audit"
	"github.com/nerrad567/homedash-core/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info,omitempty"`
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is returned by login and refresh.
type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
	User         *auth.User `json:"user"`
}

func newTokenResponse(t *auth.Tokens) tokenResponse {
	return tokenResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(time.Until(t.ExpiresAt).Seconds()),
		User:         t.User,
	}
}

// handleLogin exchanges email and password for a token pair. Every
// credential failure gets the same answer.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}
	if req.DeviceInfo == "" {
		req.DeviceInfo = r.UserAgent()
	}

	tokens, err := s.auth.SignIn(r.Context(), req.Email, req.Password, req.DeviceInfo)
	if err != nil {
		s.auditLog(&audit.Entry{
			Action:     audit.ActionLogin,
			EntityType: audit.EntitySession,
			Source:     audit.SourceREST,
			Outcome:    ErrCodeUnauthorized,
			Details:    map[string]any{"email": req.Email},
		})
		writeAuthError(w, err)
		return
	}
	s.auditLog(&audit.Entry{
		Action:     audit.ActionLogin,
		EntityType: audit.EntitySession,
		UserID:     tokens.User.ID,
		Source:     audit.SourceREST,
	})
	writeJSON(w, http.StatusOK, newTokenResponse(tokens))
}

// handleRefresh rotates a refresh token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	tokens, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(tokens))
}

// handleLogout ends the caller's session. Connected WebSocket clients on
// the same session are routed back to login.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	if err := s.auth.SignOut(r.Context(), c.claims.SessionID); err != nil {
		s.logger.Error("sign out failed", "user_id", c.user.ID, "error", err)
		writeInternalError(w, "failed to sign out")
		return
	}
	s.auditLog(&audit.Entry{
		Action:     audit.ActionLogout,
		EntityType: audit.EntitySession,
		EntityID:   c.claims.SessionID,
		UserID:     c.user.ID,
		Source:     audit.SourceREST,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the caller's account, display name and permissions.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        c.user,
		"name":        c.user.Name(),
		"permissions": auth.PermissionsForRole(c.user.Role),
		"session_id":  c.claims.SessionID,
	})
}

// handleWSTicket issues a single-use ticket that lets a browser open the
// WebSocket already signed in, without putting the access token in the
// URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	ticket := s.tickets.issue(c.token)
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending WebSocket tickets. Tickets are single-use and
// expire after ticketTTL.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
}

type ticketEntry struct {
	accessToken string
	expiresAt   time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// issue stores accessToken under a fresh ticket.
func (ts *ticketStore) issue(accessToken string) string {
	ticket := generateTicket()
	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{accessToken: accessToken, expiresAt: time.Now().Add(ticketTTL)}
	ts.mu.Unlock()
	return ticket
}

// redeem consumes ticket and returns its access token.
func (ts *ticketStore) redeem(ticket string) (string, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return "", false
	}
	delete(ts.tickets, ticket)
	if time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.accessToken, true
}

// clean removes expired tickets.
func (ts *ticketStore) clean() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for ticket, entry := range ts.tickets {
		if now.After(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

// cleanLoop runs clean periodically until the context is cancelled.
func (ts *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts.clean()
		}
	}
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}
