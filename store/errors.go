package store

import "errors"

// Sentinel errors for the store package. Callers match with errors.Is so
// that backend-specific failures stay distinguishable from missing data.
var (
	// ErrNotFound is returned when a key or hash field does not exist.
	ErrNotFound = errors.New("store: key not found")

	// ErrClosed is returned when an operation is attempted on a closed store.
	ErrClosed = errors.New("store: closed")
)
