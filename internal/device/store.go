package device

import "context"

// Store persists devices for the Registry.
//
// Implementations must be safe for concurrent use. The Registry serializes
// its own writes, so a Store only needs per-call atomicity.
type Store interface {
	// Get returns the device with the given normalized id, or ErrDeviceNotFound.
	Get(ctx context.Context, id string) (*Device, error)

	// Put inserts or replaces a device. The first Put for an id fixes its
	// position in List order.
	Put(ctx context.Context, d *Device) error

	// List returns every device in insertion order.
	List(ctx context.Context) ([]Device, error)
}
