package bus

import "errors"

var (
	// ErrNoDriver is returned when the bus is used before a driver is set.
	ErrNoDriver = errors.New("bus: no driver set")
	// ErrNotInitialized is returned when the bus is ticked before a successful Init.
	ErrNotInitialized = errors.New("bus: not initialized")
	// ErrInit wraps the driver error of a failed Init.
	ErrInit = errors.New("bus: driver init failed")
)
