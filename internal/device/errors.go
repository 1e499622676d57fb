package device

import "errors"

// Domain errors for the device package.
var (
	// ErrRoomNotFound is returned for a room that is not configured.
	ErrRoomNotFound = errors.New("device: room not found")

	// ErrFanNotFound is returned for a fan that is not configured.
	ErrFanNotFound = errors.New("device: fan not found")

	// ErrInvalidID is returned when a room or fan ID cannot form a path.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrDuplicateID is returned when a room or fan is configured twice.
	ErrDuplicateID = errors.New("device: duplicate id")

	// ErrInvalidSpeed is returned for a speed outside 0-100 percent.
	ErrInvalidSpeed = errors.New("device: speed must be between 0 and 100")
)
