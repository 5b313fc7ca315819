package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/notify"
)

// maxBatchSize bounds POST /notifications/batch.
const maxBatchSize = 500

// batchRequest is the body of POST /notifications/batch.
type batchRequest struct {
	Notifications []notify.Request `json:"notifications"`
}

// handleSendNotification dispatches one notification.
//
// The caller's user ID is used when the body omits one. Only privileged
// callers may notify another user.
func (s *Server) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	var req notify.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id, _ := identityFromContext(r.Context())
	if !s.bindRecipient(w, id, &req) {
		return
	}

	ev, err := s.notifier.Send(r.Context(), req)
	if err != nil {
		writeNotifyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// handleSendBatch dispatches a batch sequentially and reports each member.
func (s *Server) handleSendBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Notifications) == 0 {
		writeBadRequest(w, "notifications must not be empty")
		return
	}
	if len(req.Notifications) > maxBatchSize {
		writeBadRequest(w, "batch exceeds "+strconv.Itoa(maxBatchSize)+" notifications")
		return
	}

	res := s.notifier.ProcessBatch(r.Context(), req.Notifications)
	writeJSON(w, http.StatusOK, res)
}

// handleInbox lists the caller's notifications, newest first.
//
// Query parameters:
//   - userId: another user's inbox (privileged callers only)
//   - limit: max results (default 50)
func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.targetUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := s.notifier.Inbox(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("failed to list notifications", "user_id", userID, "error", err)
		writeInternalError(w, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": events, "count": len(events)})
}

// handleGetNotification returns one notification with its delivery results.
func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.ownedNotification(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleMarkRead records a read receipt. Repeated reads are idempotent.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.ownedNotification(w, r)
	if !ok {
		return
	}

	ev, err := s.notifier.MarkRead(r.Context(), ev.ID)
	if err != nil {
		writeNotifyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleNotificationAnalytics returns delivery and read analytics.
func (s *Server) handleNotificationAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.notifier.Analytics().Report())
}

// handleListTemplates returns the registered notification templates.
func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	templates := s.notifier.Templates().List()
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates, "count": len(templates)})
}

// ownedNotification loads {id} and checks the caller may see it.
// It writes the error response itself and returns false on failure.
func (s *Server) ownedNotification(w http.ResponseWriter, r *http.Request) (*notify.Event, bool) {
	ev, err := s.notifier.Notification(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeNotifyError(w, err)
		return nil, false
	}

	id, _ := identityFromContext(r.Context())
	if !isPrivileged(id) && ev.UserID != id.UserID {
		// Do not reveal other users' notification IDs.
		writeNotFound(w, "notification not found")
		return nil, false
	}
	return ev, true
}

// bindRecipient defaults the request's user to the caller and rejects
// unprivileged callers addressing someone else.
func (s *Server) bindRecipient(w http.ResponseWriter, id auth.Identity, req *notify.Request) bool {
	if req.UserID == "" {
		req.UserID = id.UserID
	}
	if req.UserID != id.UserID && !isPrivileged(id) {
		writeForbidden(w, "cannot notify another user")
		return false
	}
	return true
}

// targetUser resolves the ?userId= override against the caller.
func (s *Server) targetUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, _ := identityFromContext(r.Context())
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = id.UserID
	}
	if userID == "" {
		writeBadRequest(w, "userId is required")
		return "", false
	}
	if userID != id.UserID && !isPrivileged(id) {
		writeForbidden(w, "cannot access another user's data")
		return "", false
	}
	return userID, true
}

// writeNotifyError maps notify sentinel errors to HTTP responses.
func writeNotifyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notify.ErrInvalidRequest),
		errors.Is(err, notify.ErrInvalidRule),
		errors.Is(err, notify.ErrTemplate):
		writeValidationError(w, err.Error())
	case errors.Is(err, notify.ErrNotificationNotFound):
		writeNotFound(w, "notification not found")
	case errors.Is(err, notify.ErrRuleNotFound):
		writeNotFound(w, "rule not found")
	default:
		writeInternalError(w, "notification request failed")
	}
}
