package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a device another owner already holds.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidID is returned for empty ids or ids that cannot be a topic level.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrInvalidStatus is returned for status payloads other than online/offline.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrInvalidOwner is returned when Register is called without an owner.
	ErrInvalidOwner = errors.New("device: owner is required")
)
