package firmware

import "errors"

var (
	// ErrNotFound is returned when a firmware record does not exist.
	ErrNotFound = errors.New("firmware: not found")

	// ErrInvalidFilename is returned for an empty or unusable file name.
	ErrInvalidFilename = errors.New("firmware: invalid filename")

	// ErrEmptyFile is returned when an upload has no content.
	ErrEmptyFile = errors.New("firmware: empty file")

	// ErrTooLarge is returned when an upload exceeds MaxArtifactSize.
	ErrTooLarge = errors.New("firmware: file too large")
)
