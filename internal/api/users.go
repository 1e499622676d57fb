package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homedash-core/internal/audit"
	"github.com/nerrad567/homedash-core/internal/auth"
)

// handleListUsers returns all accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if s.users == nil {
		writeInternalError(w, "user repository not configured")
		return
	}
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleEndUserSessions signs a user out everywhere. Their open
// dashboards drop back to the login view.
func (s *Server) handleEndUserSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.users != nil {
		if _, err := s.users.GetByID(r.Context(), id); err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				writeNotFound(w, "user not found")
				return
			}
			s.logger.Error("get user failed", "user_id", id, "error", err)
			writeInternalError(w, "failed to load user")
			return
		}
	}

	if err := s.auth.SignOutEverywhere(r.Context(), id); err != nil {
		s.logger.Error("ending sessions failed", "user_id", id, "error", err)
		writeInternalError(w, "failed to end sessions")
		return
	}
	by := callerFrom(r.Context()).user.ID
	s.logger.Info("sessions ended", "user_id", id, "by", by)
	s.auditLog(&audit.Entry{
		Action:     audit.ActionRevokeSessions,
		EntityType: audit.EntityUser,
		EntityID:   id,
		UserID:     by,
		Source:     audit.SourceREST,
	})
	w.WriteHeader(http.StatusNoContent)
}
