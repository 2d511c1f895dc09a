package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/fota-core/internal/audit"
	"github.com/nerrad567/fota-core/internal/firmware"
)

// multipartOverhead allows for form fields and boundaries around the file.
const multipartOverhead = 1 << 20

// handleUploadFirmware stores a multipart upload ("file", optional "version").
func (s *Server) handleUploadFirmware(w http.ResponseWriter, r *http.Request) {
	if s.firmware == nil {
		writeUnavailable(w, "firmware catalog")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, firmware.MaxArtifactSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(w, "file exceeds the upload limit")
			return
		}
		writeBadRequest(w, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp file cleanup

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "missing required 'file' field in form data")
		return
	}
	defer file.Close()

	actor := actorFrom(r.Context())
	fw, err := s.firmware.Upload(r.Context(), header.Filename, r.FormValue("version"), actor, file)
	if err != nil {
		switch {
		case errors.Is(err, firmware.ErrInvalidFilename), errors.Is(err, firmware.ErrEmptyFile):
			writeBadRequest(w, err.Error())
		case errors.Is(err, firmware.ErrTooLarge):
			writeTooLarge(w, err.Error())
		default:
			s.logger.Error("firmware upload failed", "filename", header.Filename, "error", err)
			writeInternalError(w, "failed to store firmware")
		}
		return
	}

	s.logger.Info("firmware uploaded",
		"firmware_id", fw.ID,
		"version", fw.Version,
		"size", fw.SizeBytes,
		"actor", actor,
	)
	s.record(r.Context(), audit.ActionUpload, audit.EntityFirmware, fw.ID, map[string]any{
		"filename": fw.Filename,
		"version":  fw.Version,
		"sha256":   fw.SHA256,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"url":      fw.URL,
		"version":  fw.Version,
		"firmware": fw,
	})
}

// handleListFirmware returns catalogued firmware, newest first.
func (s *Server) handleListFirmware(w http.ResponseWriter, r *http.Request) {
	if s.firmware == nil {
		writeUnavailable(w, "firmware catalog")
		return
	}

	list, err := s.firmware.List(r.Context())
	if err != nil {
		s.logger.Error("listing firmware failed", "error", err)
		writeInternalError(w, "failed to list firmware")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"firmware": list, "count": len(list)})
}

// handleGetFirmware returns one firmware record.
func (s *Server) handleGetFirmware(w http.ResponseWriter, r *http.Request) {
	if s.firmware == nil {
		writeUnavailable(w, "firmware catalog")
		return
	}

	fw, err := s.firmware.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, firmware.ErrNotFound) {
			writeNotFound(w, "firmware not found")
			return
		}
		writeInternalError(w, "failed to get firmware")
		return
	}
	writeJSON(w, http.StatusOK, fw)
}
