package device

import (
	"math"
	"strconv"

	"github.com/nerrad567/homedash-core/internal/store"
)

// Store paths.
const (
	lightPrefix    = "Lampu/"
	fanPrefix      = "Kipas/"
	fanSpeedPrefix = "Kipas/kecepatan"

	// TemperaturePath holds the DHT22 temperature in °C.
	TemperaturePath = "dht22/temperature"
	// HumidityPath holds the DHT22 relative humidity in percent.
	HumidityPath = "dht22/humidity"
)

// LightPath returns the path of a room's light.
func LightPath(room string) string { return lightPrefix + room }

// FanPowerPath returns the path of a fan's power switch.
func FanPowerPath(fan string) string { return fanPrefix + fan }

// FanSpeedPath returns the path of a fan's speed.
func FanSpeedPath(fan string) string { return fanSpeedPrefix + fan }

// Speed scales.
const (
	// RawSpeedMax is the top of the hardware speed scale.
	RawSpeedMax = 180
	// DisplaySpeedMax is the top of the percentage scale.
	DisplaySpeedMax = 100
)

// SpeedToRaw converts a percentage to the hardware scale, clamping the
// input to 0-100. SpeedToRaw(0) is 0 and SpeedToRaw(100) is 180.
func SpeedToRaw(display int) int {
	display = min(max(display, 0), DisplaySpeedMax)
	return int(math.Round(float64(display) * RawSpeedMax / DisplaySpeedMax))
}

// SpeedToDisplay converts a hardware speed to a percentage, clamping the
// input to 0-180.
//
// Each percentage maps to a distinct raw value, so
// SpeedToDisplay(SpeedToRaw(d)) == d for every d in 0-100.
func SpeedToDisplay(raw int) int {
	raw = min(max(raw, 0), RawSpeedMax)
	return int(math.Round(float64(raw) * DisplaySpeedMax / RawSpeedMax))
}

// ValidateSpeed checks a user-chosen percentage.
func ValidateSpeed(display int) error {
	if display < 0 || display > DisplaySpeedMax {
		return ErrInvalidSpeed
	}
	return nil
}

// Switch is the projection of a boolean path.
type Switch int

const (
	// SwitchUnset means the path is absent or holds something other than
	// a boolean.
	SwitchUnset Switch = iota
	SwitchOff
	SwitchOn
)

// SwitchFrom projects a store value.
func SwitchFrom(v store.Value) Switch {
	on, ok := v.Bool()
	switch {
	case !ok:
		return SwitchUnset
	case on:
		return SwitchOn
	default:
		return SwitchOff
	}
}

// String returns "unset", "off" or "on".
func (s Switch) String() string {
	switch s {
	case SwitchOn:
		return "on"
	case SwitchOff:
		return "off"
	default:
		return "unset"
	}
}

// MarshalText encodes the switch by name.
func (s Switch) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Toggled returns the value a toggle writes: the negation of the current
// state, with unset negating to true.
func (s Switch) Toggled() bool {
	return s != SwitchOn
}

// Placeholder is shown for a reading with no value.
const Placeholder = "--"

// Reading is the projection of a numeric sensor path.
type Reading struct {
	Value   float64
	Present bool
}

// ReadingFrom projects a store value. Absent and non-numeric values give
// a reading that is not Present.
func ReadingFrom(v store.Value) Reading {
	f, ok := v.Float()
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return Reading{}
	}
	return Reading{Value: f, Present: true}
}

// Display formats the reading, or returns Placeholder.
func (r Reading) Display() string {
	if !r.Present {
		return Placeholder
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

// TemperatureGauge places a temperature on a half-circle gauge centred
// on 0 °C, clamped to [0, 1]. An absent reading sits at 0.
func TemperatureGauge(r Reading) float64 {
	if !r.Present {
		return 0
	}
	return clamp01(r.Value/100 + 0.5)
}

// HumidityGauge maps a relative humidity to [0, 1]. An absent reading
// sits at 0.
func HumidityGauge(r Reading) float64 {
	if !r.Present {
		return 0
	}
	return clamp01(r.Value / 100)
}

func clamp01(f float64) float64 {
	return min(max(f, 0), 1)
}
