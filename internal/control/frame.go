package control

import "github.com/nerrad567/homedash-core/internal/device"

// View names a control surface.
type View string

const (
	ViewLights    View = "lights"
	ViewFan       View = "fan"
	ViewDashboard View = "dashboard"
)

// Frame is everything a client needs to draw one surface. Only the
// section matching View is set.
type Frame struct {
	View    View   `json:"view"`
	User    string `json:"user"`
	Theme   Theme  `json:"theme"`
	Loading bool   `json:"loading"`

	Lights      []LightTile  `json:"lights,omitempty"`
	Fans        []FanTile    `json:"fans,omitempty"`
	Environment *Environment `json:"environment,omitempty"`

	Notices []Notice `json:"notices"`
}

// LightTile is one room's light.
type LightTile struct {
	Room  string        `json:"room"`
	State device.Switch `json:"state"`
	// Pending is set while a write for this light is in flight. State is
	// still the last confirmed value.
	Pending bool `json:"pending"`
}

// FanTile is one fan.
type FanTile struct {
	ID    string        `json:"id"`
	Power device.Switch `json:"power"`
	// Speed is the confirmed speed in percent, nil while unset.
	Speed *int `json:"speed"`
	// Draft is the percentage the user picked, shown until confirmed.
	Draft      *int `json:"draft,omitempty"`
	Optimistic bool `json:"optimistic"`
	Pending    bool `json:"pending"`
}

// Shown returns the speed to draw: the draft when there is one,
// otherwise the confirmed speed.
func (t FanTile) Shown() *int {
	if t.Draft != nil {
		return t.Draft
	}
	return t.Speed
}

// Environment is the sensor dashboard.
type Environment struct {
	Temperature Gauge `json:"temperature"`
	Humidity    Gauge `json:"humidity"`
}

// Gauge is one sensor reading ready to draw.
type Gauge struct {
	// Display is the formatted value or device.Placeholder.
	Display string   `json:"display"`
	Value   *float64 `json:"value"`
	// Fraction positions the gauge needle, in [0, 1].
	Fraction float64 `json:"fraction"`
}

func newGauge(r device.Reading, fraction func(device.Reading) float64) Gauge {
	g := Gauge{Display: r.Display(), Fraction: fraction(r)}
	if r.Present {
		v := r.Value
		g.Value = &v
	}
	return g
}
