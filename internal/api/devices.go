package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-telemetry/internal/audit"
	"github.com/nerrad567/gray-logic-telemetry/internal/device"
)

// handleListDevices returns the device directory sorted by name.
//
// Query parameters:
//   - type: filter by device type (energy_meter, sensor, etc.)
//   - location: filter by location
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeUnavailable(w, "device directory not configured")
		return
	}

	q := r.URL.Query()
	deviceType, location := q.Get("type"), q.Get("location")

	all := s.devices.ListDevices()
	devices := make([]device.Device, 0, len(all))
	for _, d := range all {
		if deviceType != "" && d.Type != deviceType {
			continue
		}
		if location != "" && d.Location != location {
			continue
		}
		devices = append(devices, d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeUnavailable(w, "device directory not configured")
		return
	}

	dev, err := s.devices.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDeviceError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice adds a device to the directory.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeUnavailable(w, "device directory not configured")
		return
	}

	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.devices.CreateDevice(r.Context(), &dev); err != nil {
		s.writeDeviceError(w, err, "failed to create device")
		return
	}

	id, _ := identityFromContext(r.Context())
	s.auditLog(audit.ActionDeviceCreated, audit.EntityDevice, dev.ID, id.Subject(), map[string]any{
		"name": dev.Name,
		"type": dev.Type,
	})
	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice replaces a device's directory entry.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeUnavailable(w, "device directory not configured")
		return
	}

	existing, err := s.devices.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDeviceError(w, err, "failed to get device")
		return
	}

	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	dev.ID = existing.ID
	dev.CreatedAt = existing.CreatedAt

	if err := s.devices.UpdateDevice(r.Context(), &dev); err != nil {
		s.writeDeviceError(w, err, "failed to update device")
		return
	}

	id, _ := identityFromContext(r.Context())
	s.auditLog(audit.ActionDeviceUpdated, audit.EntityDevice, dev.ID, id.Subject(), map[string]any{
		"name": dev.Name,
	})
	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device from the directory.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeUnavailable(w, "device directory not configured")
		return
	}

	deviceID := chi.URLParam(r, "id")
	if err := s.devices.DeleteDevice(r.Context(), deviceID); err != nil {
		s.writeDeviceError(w, err, "failed to delete device")
		return
	}

	id, _ := identityFromContext(r.Context())
	s.auditLog(audit.ActionDeviceDeleted, audit.EntityDevice, deviceID, id.Subject(), nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeDeviceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDeviceExists):
		writeConflict(w, "device already exists")
	case errors.Is(err, device.ErrInvalidDevice):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error(msg, "error", err)
		writeInternalError(w, msg)
	}
}
