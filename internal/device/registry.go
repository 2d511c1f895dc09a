package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// EventDeviceUpdate is the broadcast event name for every registry change.
const EventDeviceUpdate = "device_update"

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broadcaster receives a notification for every registry change.
// Publish must not block; delivery is best-effort.
type Broadcaster interface {
	Publish(event string, payload any)
}

// StatusUpdate is the payload broadcast when a known device reports a status.
type StatusUpdate struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// VersionUpdate is the payload broadcast when a known device reports a version.
type VersionUpdate struct {
	ID             string `json:"id"`
	CurrentVersion string `json:"currentVersion"`
}

// Registry is the authoritative id → Device mapping.
//
// Devices are created exactly once, either by Register or by their first
// inbound status/version message, and are never deleted. Every mutation
// runs under one lock (store read, store write, broadcast) so concurrent
// creators for the same id cannot both insert. Reads go straight to the
// store.
type Registry struct {
	store  Store
	events Broadcaster
	logger Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewRegistry creates a registry over store. events may be nil.
func NewRegistry(store Store, events Broadcaster) *Registry {
	return &Registry{
		store:  store,
		events: events,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// UpsertFromStatus applies an inbound status report.
//
// An unknown id is created as a discovered device with the default name.
// LastSeen is set to now and never moves backwards. The full device is
// broadcast on creation, a StatusUpdate otherwise.
func (r *Registry) UpsertFromStatus(ctx context.Context, id string, status Status) (*Device, error) {
	if status != StatusOnline && status != StatusOffline {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	return r.upsert(ctx, id, func(d *Device, now time.Time) any {
		d.Status = status
		d.touch(now)
		return StatusUpdate{ID: d.ID, Status: status}
	})
}

// UpsertFromVersion applies an inbound firmware version report.
//
// Discovery follows the same rule as UpsertFromStatus. The full device is
// broadcast on creation, a VersionUpdate otherwise.
func (r *Registry) UpsertFromVersion(ctx context.Context, id, version string) (*Device, error) {
	version = strings.TrimSpace(version)

	return r.upsert(ctx, id, func(d *Device, _ time.Time) any {
		d.CurrentVersion = version
		return VersionUpdate{ID: d.ID, CurrentVersion: version}
	})
}

// upsert loads or discovers a device, applies mutate, saves and broadcasts.
// mutate returns the payload to broadcast for an existing device.
func (r *Registry) upsert(ctx context.Context, rawID string, mutate func(d *Device, now time.Time) any) (*Device, error) {
	id := NormalizeID(rawID)
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	d, err := r.store.Get(ctx, id)
	created := false
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		d = newDevice(id, ProvenanceDiscovered, now)
		created = true
	case err != nil:
		return nil, fmt.Errorf("loading device %s: %w", id, err)
	}

	// Inbound ids come straight from the topic; keep their case for replies.
	d.TopicID = strings.TrimSpace(rawID)
	update := mutate(d, now)

	if err := r.store.Put(ctx, d); err != nil {
		return nil, fmt.Errorf("storing device %s: %w", id, err)
	}

	if created {
		r.logger.Info("device discovered", "device_id", id)
		r.publish(d.Clone())
	} else {
		r.publish(update)
	}
	return d.Clone(), nil
}

// Register creates a device on behalf of owner.
//
//   - unknown id: created as registered, status offline, never seen
//   - discovered device without an owner: claimed by owner
//   - same owner: idempotent; only the display name is updated
//   - different owner: ErrDeviceExists
//
// An empty name keeps the current (or default) display name.
func (r *Registry) Register(ctx context.Context, rawID, name, owner string) (*Device, error) {
	id := NormalizeID(rawID)
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrInvalidOwner
	}
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		d = newDevice(id, ProvenanceRegistered, r.now())
		d.Owner = owner
		r.logger.Info("device registered", "device_id", id, "owner", owner)
	case err != nil:
		return nil, fmt.Errorf("loading device %s: %w", id, err)
	case d.Owner == "":
		d.Owner = owner
		r.logger.Info("device claimed", "device_id", id, "owner", owner)
	case d.Owner != owner:
		return nil, fmt.Errorf("%w: %s is registered to another owner", ErrDeviceExists, id)
	}

	if name != "" {
		d.DisplayName = name
	}
	if d.TopicID == "" {
		d.TopicID = strings.TrimSpace(rawID)
	}

	if err := r.store.Put(ctx, d); err != nil {
		return nil, fmt.Errorf("storing device %s: %w", id, err)
	}

	r.publish(d.Clone())
	return d.Clone(), nil
}

// List returns all devices in insertion order.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	devices, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devices, nil
}

// Find returns one device, or ErrDeviceNotFound.
func (r *Registry) Find(ctx context.Context, rawID string) (*Device, error) {
	id := NormalizeID(rawID)
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return r.store.Get(ctx, id)
}

func (r *Registry) publish(payload any) {
	if r.events == nil {
		return
	}
	r.events.Publish(EventDeviceUpdate, payload)
}
