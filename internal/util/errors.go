package util

import "errors"

// Sentinel errors shared across packages
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrLocked indicates the storage target is held by another ingestion run
	ErrLocked = errors.New("storage target is locked by another run")
)
