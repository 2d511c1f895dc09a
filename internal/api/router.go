package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	// Uploaded artifacts, fetched by devices
	if s.firmware != nil {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.firmware.ArtifactDir()))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket (ticket via query parameter, validated in handler)
		r.Get(s.wsPath(), s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.bodySizeLimitMiddleware)
			r.Post("/auth/token", s.handleToken)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.actorMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(s.bodySizeLimitMiddleware)

				r.Route("/devices", func(r chi.Router) {
					r.Get("/", s.handleListDevices)
					r.Post("/", s.handleRegisterDevice)
					r.Get("/{id}", s.handleGetDevice)
				})

				r.Post("/fota/trigger", s.handleTrigger)
				r.Post("/auth/ws-ticket", s.handleWSTicket)

				r.Get("/firmware", s.handleListFirmware)
				r.Get("/firmware/{id}", s.handleGetFirmware)

				r.Get("/audit", s.handleListAudit)
			})

			// Uploads carry their own size limit
			r.Post("/firmware", s.handleUploadFirmware)
		})
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth runs every configured component check.
// Returns 503 when any check fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]string, len(s.checks))

	for name, checker := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.HealthCheck(ctx)
		cancel()

		if err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"version":    s.version,
		"components": components,
	})
}
