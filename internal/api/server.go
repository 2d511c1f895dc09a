package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/fota-core/internal/audit"
	"github.com/nerrad567/fota-core/internal/auth"
	"github.com/nerrad567/fota-core/internal/broadcast"
	"github.com/nerrad567/fota-core/internal/command"
	"github.com/nerrad567/fota-core/internal/device"
	"github.com/nerrad567/fota-core/internal/firmware"
	"github.com/nerrad567/fota-core/internal/infrastructure/config"
	"github.com/nerrad567/fota-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceRegistry is the registry surface used by the API.
type DeviceRegistry interface {
	List(ctx context.Context) ([]device.Device, error)
	Find(ctx context.Context, id string) (*device.Device, error)
	Register(ctx context.Context, id, name, owner string) (*device.Device, error)
}

// Dispatcher sends update commands to a device.
type Dispatcher interface {
	Dispatch(ctx context.Context, deviceID string, req command.Request) (*command.Receipt, error)
}

// FirmwareCatalog stores and lists firmware uploads.
type FirmwareCatalog interface {
	Upload(ctx context.Context, filename, version, uploadedBy string, r io.Reader) (*firmware.Firmware, error)
	List(ctx context.Context) ([]firmware.Firmware, error)
	Get(ctx context.Context, id string) (*firmware.Firmware, error)
	ArtifactDir() string
}

// BrokerStatus reports the broker connection. *mqtt.Client satisfies it.
type BrokerStatus interface {
	IsConnected() bool
}

// HealthChecker is implemented by infrastructure clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Registry   DeviceRegistry
	Dispatcher Dispatcher
	Firmware   FirmwareCatalog          // optional; firmware routes return 503 without it
	Events     *broadcast.Hub           // optional; the WebSocket route returns 503 without it
	Auth       *auth.Authenticator      // optional; nil trusts X-Actor
	Audit      audit.Repository         // optional; operator actions are not recorded without it
	Broker     BrokerStatus             // optional; reported by /metrics
	DB         *sql.DB                  // optional; pool stats in /metrics
	Checks     map[string]HealthChecker // reported by /health
	Version    string
}

// Server is the HTTP API server for FOTA Core.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	registry   DeviceRegistry
	dispatcher Dispatcher
	firmware   FirmwareCatalog
	events     *broadcast.Hub
	auth       *auth.Authenticator
	audit      audit.Repository
	broker     BrokerStatus
	db         *sql.DB
	checks     map[string]HealthChecker
	version    string
	startTime  time.Time
	tickets    *ticketStore
	handler    http.Handler
}

// New creates a new API server with the given dependencies.
// The server does not listen until Run is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("device registry is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger.Component("api"),
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		firmware:   deps.Firmware,
		events:     deps.Events,
		auth:       deps.Auth,
		audit:      deps.Audit,
		broker:     deps.Broker,
		db:         deps.DB,
		checks:     deps.Checks,
		version:    deps.Version,
		startTime:  time.Now(),
		tickets:    newTicketStore(),
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// Run listens until ctx is cancelled, then shuts down gracefully,
// waiting up to 10 seconds for in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", srv.Addr, "cert", s.cfg.TLS.CertFile)
			err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", srv.Addr)
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
