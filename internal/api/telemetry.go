package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// ingestResponse is returned for a single telemetry record.
type ingestResponse struct {
	Accepted bool     `json:"accepted"`
	ID       string   `json:"id,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// batchIngestResponse is returned for an array of telemetry records.
type batchIngestResponse struct {
	Accepted  int                `json:"accepted"`
	Rejected  int                `json:"rejected"`
	ErrorRate float64            `json:"errorRate"`
	Errors    []batchIngestError `json:"errors,omitempty"`
}

type batchIngestError struct {
	DeviceID string   `json:"deviceId,omitempty"`
	Errors   []string `json:"errors"`
}

// handleIngestTelemetry accepts one record or an array of records.
//
// A single invalid record answers 422 with the validation errors. Arrays are
// validated per record and answer 202 with the partition; a device caller may
// only submit records for its own device ID.
func (s *Server) handleIngestTelemetry(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id, _ := identityFromContext(r.Context())
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raws []map[string]any
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			writeBadRequest(w, "telemetry array must contain objects")
			return
		}
		for _, raw := range raws {
			if !claimDevice(id, raw) {
				writeForbidden(w, "device may only submit its own telemetry")
				return
			}
		}

		res := s.ingestor.IngestBatch(r.Context(), raws)
		resp := batchIngestResponse{
			Accepted:  len(res.Valid),
			Rejected:  len(res.Invalid),
			ErrorRate: res.ErrorRate,
		}
		for _, rej := range res.Invalid {
			deviceID, _ := rej.Raw["deviceId"].(string)
			resp.Errors = append(resp.Errors, batchIngestError{DeviceID: deviceID, Errors: rej.Result.Errors})
		}
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil || raw == nil {
		writeBadRequest(w, "telemetry must be an object or an array of objects")
		return
	}
	if !claimDevice(id, raw) {
		writeForbidden(w, "device may only submit its own telemetry")
		return
	}

	res, err := s.ingestor.Ingest(r.Context(), raw)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ingestResponse{
			Accepted: false,
			Errors:   res.Errors,
			Warnings: res.Warnings,
		})
		return
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{
		Accepted: true,
		ID:       res.Sanitized.ID,
		Warnings: res.Warnings,
	})
}

// claimDevice binds device callers to their own device ID, filling it in
// when the record omits it. Other roles pass unchanged.
func claimDevice(id auth.Identity, raw map[string]any) bool {
	if id.Role != auth.RoleDevice {
		return true
	}
	deviceID, _ := raw["deviceId"].(string)
	if deviceID == "" {
		raw["deviceId"] = id.DeviceID
		return true
	}
	return deviceID == id.DeviceID
}

// handleLatestTelemetry returns the most recent processed record of each
// type for a device.
func (s *Server) handleLatestTelemetry(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeUnavailable(w, "telemetry cache not configured")
		return
	}

	deviceID := chi.URLParam(r, "deviceId")
	records := s.cache.Device(deviceID)
	if len(records) == 0 {
		writeNotFound(w, "no telemetry for device")
		return
	}

	byType := make(map[telemetry.RecordType]*telemetry.Record, len(records))
	for _, rec := range records {
		byType[rec.Type] = rec
	}
	writeJSON(w, http.StatusOK, map[string]any{"deviceId": deviceID, "latest": byType})
}

// handleIngestStats returns the ingestion buffer counters.
func (s *Server) handleIngestStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ingestor.Buffer().Stats())
}
