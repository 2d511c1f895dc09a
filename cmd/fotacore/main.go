// FOTA Core - firmware-over-the-air coordination server
//
// FOTA Core tracks a fleet of MQTT-connected devices and pushes firmware
// and asset update commands to them:
//   - device/{id}/status and device/{id}/version messages keep the registry current
//   - registry changes are relayed to dashboard observers over WebSocket
//   - operators trigger updates and upload firmware through the REST API
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/fota-core/internal/api"
	"github.com/nerrad567/fota-core/internal/audit"
	"github.com/nerrad567/fota-core/internal/auth"
	"github.com/nerrad567/fota-core/internal/broadcast"
	"github.com/nerrad567/fota-core/internal/command"
	"github.com/nerrad567/fota-core/internal/device"
	"github.com/nerrad567/fota-core/internal/firmware"
	"github.com/nerrad567/fota-core/internal/infrastructure/config"
	"github.com/nerrad567/fota-core/internal/infrastructure/database"
	"github.com/nerrad567/fota-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/fota-core/internal/infrastructure/logging"
	"github.com/nerrad567/fota-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/fota-core/internal/telemetry"
	"github.com/nerrad567/fota-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// drainTimeout bounds how long shutdown waits for deferred assets publishes.
const drainTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled or the
// HTTP server fails.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting FOTA Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "registry_backend", cfg.Registry.Backend)

	checks := make(map[string]api.HealthChecker)

	// SQLite holds the firmware catalog and, for the sqlite backend, the registry.
	var db *database.DB
	if cfg.Database.Path != "" {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		checks["database"] = db
		log.Info("database ready", "path", cfg.Database.Path)
	}

	store, closeStore, err := openDeviceStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			log.Error("error closing device store", "error", closeErr)
		}
	}()

	hub := broadcast.NewHub(cfg.WebSocket.SendBuffer)
	hub.SetLogger(log.Component("broadcast"))

	registry := device.NewRegistry(store, hub)
	registry.SetLogger(log.Component("registry"))

	// Optional telemetry history
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Handlers are registered before Connect so the first session subscribes them.
	mqttClient := mqtt.New(cfg.MQTT)
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	ingestor := telemetry.NewIngestor(registry, byte(cfg.MQTT.QoS))
	ingestor.SetLogger(log.Component("telemetry"))
	if influxClient != nil {
		ingestor.SetHistory(influxClient)
	}
	if err := ingestor.Start(mqttClient); err != nil {
		return fmt.Errorf("starting telemetry ingestor: %w", err)
	}

	// Close also stops paho's connect retry loop after a failed Connect.
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	defer func() {
		if stopErr := ingestor.Stop(mqttClient); stopErr != nil {
			log.Warn("error stopping telemetry ingestor", "error", stopErr)
		}
	}()
	if err := mqttClient.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	checks["mqtt"] = mqttClient
	log.Info("MQTT ready",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	dispatcher := command.NewDispatcher(mqttClient, byte(cfg.Dispatch.QoS), cfg.AssetsDelay())
	dispatcher.SetLogger(log.Component("command"))
	dispatcher.SetDeviceFinder(registry)
	if influxClient != nil {
		dispatcher.SetRecorder(influxClient)
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if drainErr := dispatcher.Drain(drainCtx); drainErr != nil {
			log.Warn("pending assets commands abandoned", "error", drainErr)
		}
	}()

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Registry:   registry,
		Dispatcher: dispatcher,
		Events:     hub,
		Broker:     mqttClient,
		Checks:     checks,
		Version:    version,
	}
	if db != nil {
		deps.DB = db.DB
		deps.Audit = audit.NewSQLiteRepository(db.DB)
		deps.Firmware = firmware.NewCatalog(
			firmware.NewLocalStore(cfg.Artifacts.Dir, cfg.Artifacts.BaseURL),
			firmware.NewSQLiteRepository(db.DB),
		)
	} else {
		log.Warn("firmware catalog and audit log disabled: no database path configured")
	}
	if cfg.Security.JWT.Secret != "" {
		deps.Auth = auth.NewAuthenticator(cfg.Security.JWT.Secret, cfg.AccessTokenTTL(), operators(cfg.Security.Operators))
	}

	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete", "api", srv.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })

	err = g.Wait()
	log.Info("shutting down")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("FOTA Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FOTA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FOTA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDeviceStore builds the registry backing store selected by
// registry.backend. The returned close function is never nil.
func openDeviceStore(ctx context.Context, cfg *config.Config, db *database.DB) (device.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Registry.Backend {
	case config.RegistryBackendSQLite:
		if db == nil {
			return nil, nil, errors.New("sqlite registry backend requires database.path")
		}
		return device.NewSQLiteStore(db.DB), noop, nil

	case config.RegistryBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Registry.Redis.Addr,
			Password: cfg.Registry.Redis.Password,
			DB:       cfg.Registry.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close() //nolint:errcheck // already failing
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Registry.Redis.Addr, err)
		}
		return device.NewRedisStore(rdb, cfg.Registry.Redis.KeyPrefix), rdb.Close, nil

	case config.RegistryBackendMemory:
		return device.NewMemoryStore(), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown registry backend %q", cfg.Registry.Backend)
	}
}

// operators converts configured accounts for the authenticator.
func operators(cfgs []config.OperatorConfig) []auth.Operator {
	ops := make([]auth.Operator, 0, len(cfgs))
	for _, c := range cfgs {
		ops = append(ops, auth.Operator{Name: c.Name, PasswordHash: c.PasswordHash})
	}
	return ops
}

// healthCheck verifies every infrastructure connection once at startup.
// Returns the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, checker := range checks {
		if err := checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
