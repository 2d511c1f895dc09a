package command

import "errors"

var (
	// ErrInvalidRequest is returned when a dispatch names neither a firmware
	// nor an assets URL, or has no usable device id.
	ErrInvalidRequest = errors.New("command: invalid request")

	// ErrDraining is returned by Dispatch once shutdown has begun.
	ErrDraining = errors.New("command: dispatcher is draining")
)
