package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/fota-core/internal/device"
	"github.com/nerrad567/fota-core/internal/infrastructure/mqtt"
)

// DefaultAssetsDelay separates the firmware and assets publishes.
const DefaultAssetsDelay = 500 * time.Millisecond

// Command types on the wire.
const (
	TypeFirmware = "ota_url"
	TypeAssets   = "assets_url"
)

// Publisher sends a message to the broker. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Recorder records the outcome of each publish. *influxdb.Client satisfies it.
type Recorder interface {
	WriteCommand(deviceID, commandType, dispatchID string, ok bool, at time.Time)
}

// DeviceFinder looks up known devices. *device.Registry satisfies it.
type DeviceFinder interface {
	Find(ctx context.Context, id string) (*device.Device, error)
}

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Request names the artifacts to send. At least one URL is required.
type Request struct {
	FirmwareURL string
	AssetsURL   string
}

// Receipt acknowledges that publishes were issued, not that any was received.
type Receipt struct {
	DispatchID    string     `json:"dispatch_id"`
	DeviceID      string     `json:"device_id"`
	Topic         string     `json:"topic"`
	FirmwareSent  bool       `json:"firmware_sent"`
	AssetsPending bool       `json:"assets_pending"`
	AssetsDueAt   *time.Time `json:"assets_due_at,omitempty"`
	RequestedAt   time.Time  `json:"requested_at"`
}

// Message is the command payload published to device/{id}/command.
type Message struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Dispatcher publishes update commands.
type Dispatcher struct {
	pub         Publisher
	qos         byte
	assetsDelay time.Duration
	recorder    Recorder
	logger      Logger
	onError     func(deviceID string, err error)
	devices     DeviceFinder

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu       sync.Mutex // guards draining and the first pending.Add
	draining bool
	pending  sync.WaitGroup
}

// NewDispatcher creates a dispatcher publishing through pub at qos.
// A non-positive assetsDelay selects DefaultAssetsDelay.
func NewDispatcher(pub Publisher, qos byte, assetsDelay time.Duration) *Dispatcher {
	if assetsDelay <= 0 {
		assetsDelay = DefaultAssetsDelay
	}
	return &Dispatcher{
		pub:         pub,
		qos:         qos,
		assetsDelay: assetsDelay,
		logger:      noopLogger{},
		now:         time.Now,
		afterFunc:   time.AfterFunc,
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetRecorder enables recording of every publish outcome.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// SetDeviceFinder makes Dispatch address known devices by the id case they
// last reported on the broker.
func (d *Dispatcher) SetDeviceFinder(f DeviceFinder) {
	d.devices = f
}

// SetOnError sets a callback for failures of deferred publishes, which have
// no caller to return to.
func (d *Dispatcher) SetOnError(fn func(deviceID string, err error)) {
	d.onError = fn
}

// Dispatch sends the requested commands to deviceID.
//
// The firmware command, if any, is published before Dispatch returns and
// its error is returned. The assets command, if any, is published by a timer
// firing assetsDelay after the call; it is not scheduled when the firmware
// publish fails. The delay is a heuristic: delivery order at the device
// is not guaranteed.
//
// The command topic uses the id case the device last reported when a
// DeviceFinder knows it, and deviceID as given (trimmed) otherwise.
//
// Returns ErrInvalidRequest, with nothing published, when both URLs are
// empty or deviceID is unusable, and ErrDraining once Drain has started.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID string, req Request) (*Receipt, error) {
	start := d.now()

	topicID := strings.TrimSpace(deviceID)
	id := device.NormalizeID(topicID)
	if err := device.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req.FirmwareURL = strings.TrimSpace(req.FirmwareURL)
	req.AssetsURL = strings.TrimSpace(req.AssetsURL)
	if req.FirmwareURL == "" && req.AssetsURL == "" {
		return nil, fmt.Errorf("%w: url or assetsUrl is required", ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.devices != nil {
		if known, err := d.devices.Find(ctx, id); err == nil {
			topicID = known.CommandTopicID()
		}
	}

	// Held until return; the assets Add below never starts from zero.
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return nil, ErrDraining
	}
	d.pending.Add(1)
	d.mu.Unlock()
	defer d.pending.Done()

	topic := mqtt.Topics{}.DeviceCommand(topicID)
	receipt := &Receipt{
		DispatchID:  uuid.NewString(),
		DeviceID:    id,
		Topic:       topic,
		RequestedAt: start,
	}
	dispatchID := receipt.DispatchID

	if req.FirmwareURL != "" {
		if err := d.publish(topic, id, dispatchID, Message{Type: TypeFirmware, URL: req.FirmwareURL}); err != nil {
			return nil, err
		}
		receipt.FirmwareSent = true
	}

	if req.AssetsURL != "" {
		delay := d.assetsDelay - d.now().Sub(start)
		if delay < 0 {
			delay = 0
		}
		msg := Message{Type: TypeAssets, URL: req.AssetsURL}

		d.pending.Add(1)
		d.afterFunc(delay, func() {
			defer d.pending.Done()
			if err := d.publish(topic, id, dispatchID, msg); err != nil && d.onError != nil {
				d.onError(id, err)
			}
		})
		receipt.AssetsPending = true
		due := start.Add(d.assetsDelay)
		receipt.AssetsDueAt = &due
	}

	d.logger.Info("dispatch issued",
		"device_id", id,
		"dispatch_id", receipt.DispatchID,
		"firmware", receipt.FirmwareSent,
		"assets", receipt.AssetsPending,
	)
	return receipt, nil
}

// Drain blocks until every scheduled assets publish has run or ctx is done.
// It never cancels them. Dispatch calls made after Drain starts fail with
// ErrDraining.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) publish(topic, deviceID, dispatchID string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s command: %w", msg.Type, err)
	}

	err = d.pub.Publish(topic, payload, d.qos, false)
	if d.recorder != nil {
		d.recorder.WriteCommand(deviceID, msg.Type, dispatchID, err == nil, d.now())
	}
	if err != nil {
		d.logger.Error("command publish failed",
			"device_id", deviceID,
			"dispatch_id", dispatchID,
			"type", msg.Type,
			"error", err,
		)
		return fmt.Errorf("publishing %s to %s: %w", msg.Type, topic, err)
	}
	return nil
}
