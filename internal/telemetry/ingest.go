package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/fota-core/internal/device"
	"github.com/nerrad567/fota-core/internal/infrastructure/mqtt"
)

// defaultHandleTimeout bounds one message's registry work.
const defaultHandleTimeout = 5 * time.Second

// Subscriber registers and removes topic handlers. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Registry is the part of device.Registry the ingestor drives.
type Registry interface {
	UpsertFromStatus(ctx context.Context, id string, status device.Status) (*device.Device, error)
	UpsertFromVersion(ctx context.Context, id, version string) (*device.Device, error)
}

// HistoryWriter records accepted messages. *influxdb.Client satisfies it.
type HistoryWriter interface {
	WriteDeviceStatus(deviceID, status string, at time.Time)
	WriteDeviceVersion(deviceID, version string, at time.Time)
}

// Logger defines the logging interface used by the Ingestor.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Ingestor applies inbound device messages to the registry.
type Ingestor struct {
	registry Registry
	history  HistoryWriter
	logger   Logger
	qos      byte
	timeout  time.Duration
}

// NewIngestor creates an ingestor for registry. qos is the subscription QoS.
func NewIngestor(registry Registry, qos byte) *Ingestor {
	return &Ingestor{
		registry: registry,
		logger:   noopLogger{},
		qos:      qos,
		timeout:  defaultHandleTimeout,
	}
}

// SetLogger sets the logger for the ingestor.
func (in *Ingestor) SetLogger(logger Logger) {
	in.logger = logger
}

// SetHistory enables time-series recording of accepted messages.
func (in *Ingestor) SetHistory(w HistoryWriter) {
	in.history = w
}

func devicePatterns() []string {
	topics := mqtt.Topics{}
	return []string{topics.AllDeviceStatus(), topics.AllDeviceVersions()}
}

// Start registers handlers for device/+/status and device/+/version.
// With *mqtt.Client the handlers stay registered across reconnects.
func (in *Ingestor) Start(sub Subscriber) error {
	for _, pattern := range devicePatterns() {
		if err := sub.Subscribe(pattern, in.qos, in.HandleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", pattern, err)
		}
	}
	return nil
}

// Stop removes the handlers registered by Start. Every pattern is attempted;
// the errors are joined.
func (in *Ingestor) Stop(sub Subscriber) error {
	var errs []error
	for _, pattern := range devicePatterns() {
		if err := sub.Unsubscribe(pattern); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribing from %s: %w", pattern, err))
		}
	}
	return errors.Join(errs...)
}

// HandleMessage processes one broker message. It has the mqtt.MessageHandler
// signature. Malformed topics and unknown kinds return nil with no mutation.
func (in *Ingestor) HandleMessage(topic string, payload []byte) error {
	route, ok := Parse(topic)
	if !ok {
		in.logger.Debug("ignoring non-device topic", "topic", topic)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), in.timeout)
	defer cancel()

	switch route.Kind {
	case KindStatus:
		return in.handleStatus(ctx, route.DeviceID, payload)
	case KindVersion:
		return in.handleVersion(ctx, route.DeviceID, payload)
	}
	return nil
}

func (in *Ingestor) handleStatus(ctx context.Context, id string, payload []byte) error {
	status, err := device.ParseStatus(string(payload))
	if err != nil {
		in.logger.Warn("rejecting status message", "device_id", id, "error", err)
		return nil
	}

	d, err := in.registry.UpsertFromStatus(ctx, id, status)
	if err != nil {
		return in.rejected(id, err)
	}

	if in.history != nil {
		in.history.WriteDeviceStatus(d.ID, string(d.Status), at(d))
	}
	return nil
}

func (in *Ingestor) handleVersion(ctx context.Context, id string, payload []byte) error {
	d, err := in.registry.UpsertFromVersion(ctx, id, string(payload))
	if err != nil {
		return in.rejected(id, err)
	}

	if in.history != nil {
		in.history.WriteDeviceVersion(d.ID, d.CurrentVersion, time.Now())
	}
	return nil
}

// rejected logs input errors and returns storage errors so the transport
// logs them at its own level.
func (in *Ingestor) rejected(id string, err error) error {
	if errors.Is(err, device.ErrInvalidID) || errors.Is(err, device.ErrInvalidStatus) {
		in.logger.Warn("rejecting device message", "device_id", id, "error", err)
		return nil
	}
	return fmt.Errorf("applying message for %s: %w", id, err)
}

func at(d *device.Device) time.Time {
	if d.LastSeen != nil {
		return *d.LastSeen
	}
	return time.Now()
}
