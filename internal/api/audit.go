package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/homedash-core/internal/audit"
)

// auditChanSize is the buffer of the async audit channel. Entries beyond
// it are dropped so auditing never holds up a request.
const auditChanSize = 256

// auditLog enqueues an entry for asynchronous write (best-effort).
func (s *Server) auditLog(e *audit.Entry) {
	if s.auditRepo == nil {
		return
	}

	select {
	case s.auditCh <- e:
	default:
		s.logger.Warn("audit channel full, dropping entry",
			"action", e.Action,
			"entity_type", e.EntityType,
		)
	}
}

// auditIntent records a device command and its outcome.
func (s *Server) auditIntent(source, action, userID, target string, speed *int, err error) {
	entityType := audit.EntityLight
	if action != audit.ActionToggleLight {
		entityType = audit.EntityFan
	}
	e := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   target,
		UserID:     userID,
		Source:     source,
	}
	if speed != nil {
		e.Details = map[string]any{"speed": *speed}
	}
	if err != nil {
		e.Outcome, _ = controlErrorCode(err)
	}
	s.auditLog(e)
}

// drainAuditLog writes queued entries serially until ctx is cancelled,
// then flushes what is left and closes done.
func (s *Server) drainAuditLog(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	write := func(e *audit.Entry) {
		if err := s.auditRepo.Create(context.Background(), e); err != nil {
			s.logger.Error("audit write failed",
				"action", e.Action,
				"entity_type", e.EntityType,
				"error", err,
			)
		}
	}

	for {
		select {
		case e := <-s.auditCh:
			write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-s.auditCh:
					write(e)
				default:
					return
				}
			}
		}
	}
}

// handleListAudit returns a page of the audit trail.
//
// Query parameters:
//   - action, entity_type, entity_id, user_id: exact-match filters
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeNotFound(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be a number")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be a number")
			return
		}
		filter.Offset = n
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit trail failed", "error", err)
		writeInternalError(w, "failed to list audit trail")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
