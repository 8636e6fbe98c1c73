package app

import "errors"

var (
	// ErrBookNotFound is returned when no book matches the requested id.
	ErrBookNotFound = errors.New("book not found")
	// ErrUnavailable is returned when the database cannot be reached.
	ErrUnavailable = errors.New("database unavailable")
	// ErrUpdateNotImplemented is returned for every update request.
	ErrUpdateNotImplemented = errors.New("update not implemented")
	// ErrSnapshotsDisabled is returned when no object store is configured.
	ErrSnapshotsDisabled = errors.New("snapshots disabled")
)
