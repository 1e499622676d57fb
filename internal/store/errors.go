package store

import "errors"

// Domain errors. Backends wrap their transport errors in these so callers
// can classify failures with errors.Is.
var (
	// ErrInvalidPath is returned for empty paths, empty segments or
	// characters reserved by the backends.
	ErrInvalidPath = errors.New("store: invalid path")

	// ErrPermissionDenied is returned when a write rule rejects the actor.
	ErrPermissionDenied = errors.New("store: permission denied")

	// ErrUnavailable is returned while the backend cannot reach its
	// source of truth. Retrying later may succeed.
	ErrUnavailable = errors.New("store: unavailable")

	// ErrClosed is returned by a backend after Close.
	ErrClosed = errors.New("store: closed")
)
