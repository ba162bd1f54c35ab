package model

import "errors"

// Sentinel kinds for model validation.
var (
	ErrInvalidEvent = errors.New("invalid event")
)
