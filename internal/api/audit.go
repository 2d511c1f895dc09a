package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/fota-core/internal/audit"
)

// auditWriteTimeout bounds one audit insert. Recording outlives the request
// context so a disconnecting client does not lose the entry.
const auditWriteTimeout = 2 * time.Second

// record appends an audit entry for the request's actor.
// Failures are logged and never fail the request.
func (s *Server) record(ctx context.Context, action, entityType, entityID string, details map[string]any) {
	s.recordAs(ctx, actorFrom(ctx), action, entityType, entityID, details)
}

func (s *Server) recordAs(ctx context.Context, actor, action, entityType, entityID string, details map[string]any) {
	if s.audit == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	entry := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Details:    details,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Error("recording audit entry failed",
			"action", action,
			"entity_id", entityID,
			"error", err,
		)
	}
}

// handleListAudit returns operator activity, newest first.
// Query parameters: action, entity_type, entity_id, actor, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "audit log")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Actor:      q.Get("actor"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	page, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
