package docstore

import "errors"

var (
	// ErrNotConfigured is returned by every operation on a Handle before a
	// configuration has been applied. No backend is contacted.
	ErrNotConfigured = errors.New("store is not configured")

	// ErrNotFound is returned when updating a document that does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned by Batch when an op's If conditions do not hold.
	ErrConflict = errors.New("conflict")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid store configuration")
)
