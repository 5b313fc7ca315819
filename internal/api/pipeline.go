package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-telemetry/internal/pipeline"
)

// handlePipelineStats returns queue depth and per-processor counters.
func (s *Server) handlePipelineStats(w http.ResponseWriter, _ *http.Request) {
	if s.pipeline == nil {
		writeUnavailable(w, "pipeline not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Stats())
}

// handleListProcessors returns the processors in execution order.
func (s *Server) handleListProcessors(w http.ResponseWriter, _ *http.Request) {
	if s.pipeline == nil {
		writeUnavailable(w, "pipeline not configured")
		return
	}
	procs := s.pipeline.Processors()
	writeJSON(w, http.StatusOK, map[string]any{"processors": procs, "count": len(procs)})
}

// setActiveRequest is the body of PATCH /pipeline/processors/{id}.
type setActiveRequest struct {
	Active *bool `json:"active"`
}

// handleSetProcessorActive enables or disables a processor at runtime.
func (s *Server) handleSetProcessorActive(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeUnavailable(w, "pipeline not configured")
		return
	}

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Active == nil {
		writeBadRequest(w, "active is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.pipeline.SetActive(id, *req.Active); err != nil {
		if errors.Is(err, pipeline.ErrProcessorNotFound) {
			writeNotFound(w, "processor not found")
			return
		}
		writeInternalError(w, "failed to update processor")
		return
	}

	s.logger.Info("processor toggled", "processor_id", id, "active", *req.Active)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": *req.Active})
}
