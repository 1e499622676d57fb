package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homedash-core/internal/audit"
	"github.com/nerrad567/homedash-core/internal/auth"
	"github.com/nerrad567/homedash-core/internal/control"
)

// surfaceReadyTimeout bounds how long a REST request waits for a
// surface's first values.
const surfaceReadyTimeout = 5 * time.Second

// setSpeedRequest is the request body for PUT /fans/{id}/speed.
type setSpeedRequest struct {
	Speed *int `json:"speed"`
}

// withSurface opens the view's surface for the caller, waits for its
// first values and runs fn. The surface is closed when fn returns, so a
// REST request holds its store listeners only for its own duration.
func (s *Server) withSurface(w http.ResponseWriter, r *http.Request, view control.View, fn func(ctx context.Context, sf control.Surface) (any, error)) {
	c := callerFrom(r.Context())
	env := control.Env{
		Principal: auth.PrincipalOf(c.user),
		Theme:     control.ParseTheme(r.URL.Query().Get("theme")),
	}

	sf, err := control.New(view, s.surfaceDeps(), env, nil)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	defer sf.Close()

	if err := sf.Open(r.Context()); err != nil {
		s.logger.Warn("opening surface failed", "view", view, "error", err)
		writeControlError(w, err)
		return
	}

	ctx, cancel := context.WithTimeoutCause(r.Context(), surfaceReadyTimeout, fmt.Errorf("%s surface not ready", view))
	defer cancel()
	if err := sf.Ready(ctx); err != nil {
		s.logger.Warn("surface not ready", "view", view, "error", context.Cause(ctx))
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "device state not available")
		return
	}

	result, err := fn(r.Context(), sf)
	if err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func snapshot(ctx context.Context, sf control.Surface) (any, error) {
	return sf.Snapshot(ctx)
}

// handleGetLights returns the lights frame.
func (s *Server) handleGetLights(w http.ResponseWriter, r *http.Request) {
	s.withSurface(w, r, control.ViewLights, snapshot)
}

// handleGetFans returns the fan frame.
func (s *Server) handleGetFans(w http.ResponseWriter, r *http.Request) {
	s.withSurface(w, r, control.ViewFan, snapshot)
}

// handleGetEnvironment returns the sensor dashboard frame.
func (s *Server) handleGetEnvironment(w http.ResponseWriter, r *http.Request) {
	s.withSurface(w, r, control.ViewDashboard, snapshot)
}

// handleToggleLight flips a room's light. The response arrives once the
// store has accepted the write; the new state shows up on the next read.
func (s *Server) handleToggleLight(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	if err := s.catalog.Room(room); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	s.withSurface(w, r, control.ViewLights, func(ctx context.Context, sf control.Surface) (any, error) {
		err := sf.(*control.Lights).Toggle(ctx, room)
		s.auditIntent(audit.SourceREST, audit.ActionToggleLight, callerFrom(ctx).user.ID, room, nil, err)
		if err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok", "room": room}, nil
	})
}

// handleToggleFan flips a fan's power.
func (s *Server) handleToggleFan(w http.ResponseWriter, r *http.Request) {
	fan := chi.URLParam(r, "id")
	if err := s.catalog.Fan(fan); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	s.withSurface(w, r, control.ViewFan, func(ctx context.Context, sf control.Surface) (any, error) {
		err := sf.(*control.Fans).Toggle(ctx, fan)
		s.auditIntent(audit.SourceREST, audit.ActionToggleFan, callerFrom(ctx).user.ID, fan, nil, err)
		if err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok", "fan": fan}, nil
	})
}

// handleSetFanSpeed sets a fan's speed in percent.
func (s *Server) handleSetFanSpeed(w http.ResponseWriter, r *http.Request) {
	fan := chi.URLParam(r, "id")
	if err := s.catalog.Fan(fan); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	var req setSpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Speed == nil {
		writeBadRequest(w, "speed is required")
		return
	}
	s.withSurface(w, r, control.ViewFan, func(ctx context.Context, sf control.Surface) (any, error) {
		err := sf.(*control.Fans).SetSpeed(ctx, fan, *req.Speed)
		s.auditIntent(audit.SourceREST, audit.ActionSetSpeed, callerFrom(ctx).user.ID, fan, req.Speed, err)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "ok", "fan": fan, "speed": *req.Speed}, nil
	})
}
