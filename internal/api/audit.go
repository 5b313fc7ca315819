package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/audit"
)

// auditChanSize bounds queued audit entries. Requests never block on the
// audit trail; overflow is dropped with a warning.
const auditChanSize = 256

// auditFlushTimeout bounds writing the queued entries left at shutdown.
const auditFlushTimeout = 5 * time.Second

// auditLog queues one management action performed through the API.
func (s *Server) auditLog(action, entityType, entityID, userID string, details map[string]any) {
	if s.auditCh == nil {
		return
	}

	entry := &audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     "api",
		Details:    details,
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit log channel full, dropping entry",
			"action", action,
			"entity_type", entityType,
			"entity_id", entityID,
		)
	}
}

// drainAuditLog is the single writer for queued audit entries. On
// cancellation it flushes whatever is still queued and returns.
func (s *Server) drainAuditLog(ctx context.Context) {
	for {
		select {
		case entry := <-s.auditCh:
			s.writeAudit(context.WithoutCancel(ctx), entry)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditFlushTimeout)
			defer cancel()
			for {
				select {
				case entry := <-s.auditCh:
					s.writeAudit(flushCtx, entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) writeAudit(ctx context.Context, entry *audit.AuditLog) {
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}

// handleListAuditLogs returns audit entries, newest first.
//
// Query parameters: action, entity_type, entity_id, user_id, since (RFC3339),
// limit (default 50, max 200) and offset.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit logging not configured")
		return
	}

	filter, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseAuditFilter(q url.Values) (audit.Filter, error) {
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("since must be an RFC3339 timestamp")
		}
		filter.Since = since
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("%s must be a non-negative integer", p.name)
		}
		*p.dst = n
	}
	return filter, nil
}
