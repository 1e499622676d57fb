package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homedash-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// WebSocket authenticates in-band or with a ticket.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermDeviceRead))
				r.Get("/lights", s.handleGetLights)
				r.Get("/fans", s.handleGetFans)
				r.Get("/environment", s.handleGetEnvironment)
				r.Get("/history", s.handleGetHistory)
			})

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermDeviceOperate))
				r.Post("/lights/{room}/toggle", s.handleToggleLight)
				r.Post("/fans/{id}/toggle", s.handleToggleFan)
				r.Put("/fans/{id}/speed", s.handleSetFanSpeed)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(requirePermission(auth.PermUserManage))
				r.Get("/", s.handleListUsers)
				r.Delete("/{id}/sessions", s.handleEndUserSessions)
			})

			r.With(requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAudit)
		})
	})

	if s.web != nil {
		r.Handle("/*", s.web)
	}

	return r
}

// handleHealth reports the server version and the state of every
// dependency. Any failing check makes the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":    overall,
		"version":   s.version,
		"checks":    checks,
		"listeners": s.bridge.Listeners(),
		"clients":   s.hub.ClientCount(),
	})
}
