package realtime

import "errors"

var (
	// ErrCancelled is returned by Stream.Next after Cancel.
	ErrCancelled = errors.New("realtime: stream cancelled")

	// ErrWriteTimeout is returned when the backend does not settle a write
	// within the bridge's write timeout.
	ErrWriteTimeout = errors.New("realtime: write timed out")
)
