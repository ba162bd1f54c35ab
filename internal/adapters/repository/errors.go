package repository

import "errors"

// Sentinel kinds for persistence errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)
