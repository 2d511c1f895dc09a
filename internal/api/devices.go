package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/fota-core/internal/audit"
	"github.com/nerrad567/fota-core/internal/device"
)

// RegisterDeviceRequest is the body of POST /devices.
// MAC is accepted as an alias of ID.
type RegisterDeviceRequest struct {
	ID   string `json:"id"`
	MAC  string `json:"mac"`
	Name string `json:"name"`
}

// handleListDevices returns all devices in registration order.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.Find(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrInvalidID):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("getting device failed", "device_id", id, "error", err)
			writeInternalError(w, "failed to get device")
		}
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleRegisterDevice registers a device for the calling actor.
//
// Registering again as the same owner is idempotent (the name may change).
// A device owned by someone else yields 409.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = strings.TrimSpace(req.MAC)
	}
	if id == "" {
		writeBadRequest(w, "id or mac is required")
		return
	}

	actor := actorFrom(r.Context())
	dev, err := s.registry.Register(r.Context(), id, req.Name, actor)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			writeConflict(w, "device is registered to another owner")
		case errors.Is(err, device.ErrInvalidID), errors.Is(err, device.ErrInvalidOwner):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("registering device failed", "device_id", id, "error", err)
			writeInternalError(w, "failed to register device")
		}
		return
	}

	s.logger.Info("device registered via API", "device_id", dev.ID, "owner", actor)
	s.record(r.Context(), audit.ActionRegister, audit.EntityDevice, dev.ID, map[string]any{"displayName": dev.DisplayName})
	writeJSON(w, http.StatusCreated, dev)
}
