package device

import (
	"context"
	"time"
)

// Series kinds in the state history.
const (
	SeriesLight    = "light"
	SeriesFan      = "fan"
	SeriesFanSpeed = "fan_speed"
)

// HistoryEntry is one recorded device state change.
//
// Switches are stored as 1 (on) or 0 (off), fan speeds in display percent
// and sensor readings in their own unit. The history keeps a local trail
// even when no time-series database is configured.
type HistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// Series names what changed, e.g. "light/dapur" or "dht22/humidity".
	Series string `json:"series"`

	// Value is the recorded state.
	Value float64 `json:"value"`

	// CreatedAt is when the change was recorded (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// SwitchSeries returns the series name of a light or fan switch.
func SwitchSeries(kind, id string) string { return kind + "/" + id }

// FanSpeedSeries returns the series name of a fan's speed.
func FanSpeedSeries(fan string) string { return SeriesFanSpeed + "/" + fan }

// ReadingSeries returns the series name of a sensor quantity.
func ReadingSeries(sensor, quantity string) string { return sensor + "/" + quantity }

// HistoryRepository stores and retrieves device state history.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// Record appends a value to a series.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - series: Series name (see SwitchSeries, FanSpeedSeries, ReadingSeries)
	//   - value: Recorded state
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	Record(ctx context.Context, series string, value float64) error

	// History returns the most recent entries of a series.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - series: Series name
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []HistoryEntry: Ordered newest-first entries (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	History(ctx context.Context, series string, limit int) ([]HistoryEntry, error)
}
