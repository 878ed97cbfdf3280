package types

import "errors"

// Error kinds shared across packages. Wrap with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	// ErrInvalidInput is returned for malformed geometry or command input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig is returned when a threshold or profile name is out of range.
	ErrConfig = errors.New("invalid configuration")

	// ErrNotFound is returned for an unknown calibration profile name.
	ErrNotFound = errors.New("not found")

	// ErrIO is returned when a persistence read or write fails.
	ErrIO = errors.New("io failure")

	// ErrDecode is returned when persisted or polled JSON cannot be decoded.
	ErrDecode = errors.New("decode failure")
)
