package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/fota-core/internal/audit"
	"github.com/nerrad567/fota-core/internal/command"
	"github.com/nerrad567/fota-core/internal/infrastructure/mqtt"
)

// TriggerRequest is the body of POST /fota/trigger.
type TriggerRequest struct {
	MAC       string `json:"mac"`
	URL       string `json:"url"`
	AssetsURL string `json:"assetsUrl"`
}

// TriggerResponse acknowledges that publishes were issued, not received.
type TriggerResponse struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	DispatchID string           `json:"dispatch_id"`
	Receipt    *command.Receipt `json:"receipt"`
}

// handleTrigger sends firmware and/or assets URLs to one device.
// The assets command is published after this handler returns.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	receipt, err := s.dispatcher.Dispatch(r.Context(), req.MAC, command.Request{
		FirmwareURL: req.URL,
		AssetsURL:   req.AssetsURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, command.ErrInvalidRequest):
			writeBadRequest(w, "Missing mac or at least one url (firmware or assets)")
		case errors.Is(err, command.ErrDraining):
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "shutting down")
		case errors.Is(err, mqtt.ErrNotConnected), errors.Is(err, mqtt.ErrPublishFailed):
			s.logger.Warn("FOTA trigger publish failed", "device_id", req.MAC, "error", err)
			writeBrokerUnavailable(w)
		default:
			s.logger.Error("FOTA trigger failed", "device_id", req.MAC, "error", err)
			writeInternalError(w, "failed to dispatch command")
		}
		return
	}

	details := map[string]any{"dispatchId": receipt.DispatchID}
	if req.URL != "" {
		details["firmwareUrl"] = req.URL
	}
	if req.AssetsURL != "" {
		details["assetsUrl"] = req.AssetsURL
	}
	s.record(r.Context(), audit.ActionTrigger, audit.EntityDevice, receipt.DeviceID, details)

	s.logger.Info("FOTA triggered",
		"device_id", receipt.DeviceID,
		"dispatch_id", receipt.DispatchID,
		"actor", actorFrom(r.Context()),
	)
	writeJSON(w, http.StatusAccepted, TriggerResponse{
		Success:    true,
		Message:    "FOTA command(s) sent",
		DispatchID: receipt.DispatchID,
		Receipt:    receipt,
	})
}
