package control

import (
	"context"

	"github.com/nerrad567/homedash-core/internal/device"
	"github.com/nerrad567/homedash-core/internal/store"
)

// Dashboard is the read-only environment surface. It never writes.
type Dashboard struct {
	*core

	// loop
	temperature device.Reading
	humidity    device.Reading
}

// NewDashboard builds the surface. Nothing is subscribed until Open.
func NewDashboard(deps Deps, env Env, render RenderFunc) *Dashboard {
	d := &Dashboard{core: newCore(ViewDashboard, deps, env, render)}
	d.apply = d.applyValue
	d.project = d.projectFrame
	return d
}

// Open subscribes to the temperature and humidity readings.
func (d *Dashboard) Open(ctx context.Context) error {
	return d.open(ctx, []string{device.TemperaturePath, device.HumidityPath})
}

func (d *Dashboard) applyValue(path string, v store.Value) {
	r := device.ReadingFrom(v)
	if v.Present() && !r.Present {
		d.logger.Debug("reading is not a number", "path", path, "value", v.String())
	}
	switch path {
	case device.TemperaturePath:
		d.temperature = r
	case device.HumidityPath:
		d.humidity = r
	}
}

func (d *Dashboard) projectFrame(f *Frame) {
	f.Environment = &Environment{
		Temperature: newGauge(d.temperature, device.TemperatureGauge),
		Humidity:    newGauge(d.humidity, device.HumidityGauge),
	}
}
