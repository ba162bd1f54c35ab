package lifecycle

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the scheduler loop is active.
	ErrAlreadyRunning = errors.New("lifecycle scheduler already running")
	// ErrInvalidInterval is returned when the tick interval is not positive.
	ErrInvalidInterval = errors.New("lifecycle interval must be positive")
)
