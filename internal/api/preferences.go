package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/gray-logic-telemetry/internal/notify"
)

// handleGetPreferences returns the delivery preferences of the caller, or of
// ?userId= for privileged callers.
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeUnavailable(w, "preference store not configured")
		return
	}
	userID, ok := s.targetUser(w, r)
	if !ok {
		return
	}

	p, err := s.prefs.GetUserPreferences(r.Context(), userID)
	if err != nil {
		s.logger.Error("failed to load preferences", "user_id", userID, "error", err)
		writeInternalError(w, "failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSetPreferences replaces the delivery preferences.
func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeUnavailable(w, "preference store not configured")
		return
	}
	userID, ok := s.targetUser(w, r)
	if !ok {
		return
	}

	var p notify.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	p.UserID = userID

	if err := s.prefs.SetUserPreferences(r.Context(), &p); err != nil {
		s.logger.Error("failed to store preferences", "user_id", userID, "error", err)
		writeInternalError(w, "failed to store preferences")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
