package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-telemetry/internal/audit"
	"github.com/nerrad567/gray-logic-telemetry/internal/notify"
)

// handleListRules returns the caller's rules. Privileged callers get every
// rule unless ?userId= narrows it.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeUnavailable(w, "rule store not configured")
		return
	}

	id, _ := identityFromContext(r.Context())
	userID := r.URL.Query().Get("userId")
	if !isPrivileged(id) {
		if userID != "" && userID != id.UserID {
			writeForbidden(w, "cannot list another user's rules")
			return
		}
		userID = id.UserID
	}

	rules, err := s.rules.List(r.Context(), userID)
	if err != nil {
		s.logger.Error("failed to list rules", "error", err)
		writeInternalError(w, "failed to list rules")
		return
	}
	if rules == nil {
		rules = []notify.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

// handleCreateRule stores a new notification rule.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeUnavailable(w, "rule store not configured")
		return
	}

	var rule notify.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id, _ := identityFromContext(r.Context())
	if rule.UserID == "" {
		rule.UserID = id.UserID
	}
	if rule.UserID != id.UserID && !isPrivileged(id) {
		writeForbidden(w, "cannot create rules for another user")
		return
	}
	rule.TriggerCount = 0
	rule.LastTriggered = nil

	if err := s.rules.Create(r.Context(), &rule); err != nil {
		if errors.Is(err, notify.ErrInvalidRule) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("failed to create rule", "error", err)
		writeInternalError(w, "failed to create rule")
		return
	}

	s.auditLog(audit.ActionRuleCreated, audit.EntityRule, rule.ID, id.Subject(), map[string]any{
		"name":  rule.Name,
		"owner": rule.UserID,
	})
	writeJSON(w, http.StatusCreated, rule)
}

// handleGetRule returns a single rule.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.ownedRule(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleUpdateRule replaces a rule's definition. The owner, ID and trigger
// statistics cannot be changed through the body.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.ownedRule(w, r)
	if !ok {
		return
	}

	var rule notify.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	rule.ID = existing.ID
	rule.UserID = existing.UserID
	rule.TriggerCount = existing.TriggerCount
	rule.LastTriggered = existing.LastTriggered
	rule.CreatedAt = existing.CreatedAt

	if err := s.rules.Update(r.Context(), &rule); err != nil {
		s.writeRuleError(w, err, "failed to update rule")
		return
	}

	id, _ := identityFromContext(r.Context())
	s.auditLog(audit.ActionRuleUpdated, audit.EntityRule, rule.ID, id.Subject(), map[string]any{
		"name":   rule.Name,
		"active": rule.Active,
	})
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteRule removes a rule.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.ownedRule(w, r)
	if !ok {
		return
	}

	if err := s.rules.Delete(r.Context(), rule.ID); err != nil {
		s.writeRuleError(w, err, "failed to delete rule")
		return
	}

	id, _ := identityFromContext(r.Context())
	s.auditLog(audit.ActionRuleDeleted, audit.EntityRule, rule.ID, id.Subject(), map[string]any{
		"name": rule.Name,
	})
	w.WriteHeader(http.StatusNoContent)
}

// ownedRule loads {id} and checks the caller owns it. SYSTEM rules are
// visible to privileged callers only.
func (s *Server) ownedRule(w http.ResponseWriter, r *http.Request) (*notify.Rule, bool) {
	if s.rules == nil {
		writeUnavailable(w, "rule store not configured")
		return nil, false
	}

	rule, err := s.rules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeRuleError(w, err, "failed to load rule")
		return nil, false
	}

	id, _ := identityFromContext(r.Context())
	if !isPrivileged(id) && rule.UserID != id.UserID {
		writeNotFound(w, "rule not found")
		return nil, false
	}
	return rule, true
}

func (s *Server) writeRuleError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, notify.ErrRuleNotFound):
		writeNotFound(w, "rule not found")
	case errors.Is(err, notify.ErrInvalidRule):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error(msg, "error", err)
		writeInternalError(w, msg)
	}
}
