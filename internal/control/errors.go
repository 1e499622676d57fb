package control

import "errors"

var (
	// ErrClosed is returned for intents on a closed surface.
	ErrClosed = errors.New("control: surface closed")

	// ErrNotOpen is returned for intents on a surface that was never
	// opened.
	ErrNotOpen = errors.New("control: surface not open")

	// ErrAlreadyOpen is returned by a second Open.
	ErrAlreadyOpen = errors.New("control: surface already open")

	// ErrUnauthenticated is returned by Open when the environment carries
	// no principal. No path is subscribed.
	ErrUnauthenticated = errors.New("control: no authenticated principal")
)
