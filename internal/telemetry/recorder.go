package telemetry

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/homedash-core/internal/device"
	"github.com/nerrad567/homedash-core/internal/realtime"
	"github.com/nerrad567/homedash-core/internal/store"
)

// Sensor name used for the DHT22 readings.
const sensorDHT22 = "dht22"

// Switch kinds.
const (
	KindLight = device.SeriesLight
	KindFan   = device.SeriesFan
)

// Sink receives confirmed device state. influxdb.Client, metrics.Metrics
// and device.SQLiteHistory implement it.
type Sink interface {
	WriteReading(sensor, quantity string, value float64)
	WriteSwitch(kind, id string, on bool)
	WriteFanSpeed(fan string, percent int)
}

// Forgetter is implemented by sinks that hold a current value and must
// drop it when the path becomes absent. History sinks do not need it.
type Forgetter interface {
	ForgetReading(sensor, quantity string)
	ForgetSwitch(kind, id string)
	ForgetFanSpeed(fan string)
}

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder follows every catalogued path through the bridge and hands
// each change to its sinks. It holds one listener per path for as long
// as Run is running.
type Recorder struct {
	bridge  *realtime.Bridge
	catalog *device.Catalog
	sinks   []Sink
	logger  Logger
}

// NewRecorder builds a recorder. Nil sinks are skipped, so an optional
// InfluxDB client can be passed unconditionally.
func NewRecorder(bridge *realtime.Bridge, catalog *device.Catalog, sinks ...Sink) *Recorder {
	r := &Recorder{
		bridge:  bridge,
		catalog: catalog,
		logger:  noopLogger{},
	}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// SetLogger sets the logger.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Run records until ctx ends. It returns nil on cancellation and an
// error only if a path could not be subscribed.
func (r *Recorder) Run(ctx context.Context) error {
	routes := r.routes()

	streams := make([]*realtime.Stream, 0, len(routes))
	defer func() {
		for _, s := range streams {
			s.Cancel()
		}
	}()
	for path := range routes {
		s, err := r.bridge.Subscribe(path)
		if err != nil {
			return fmt.Errorf("telemetry: subscribing %s: %w", path, err)
		}
		streams = append(streams, s)
	}

	r.logger.Info("telemetry recorder started", "paths", len(streams), "sinks", len(r.sinks))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range streams {
		record := routes[s.Path()]
		g.Go(func() error {
			for v := range s.Values(gctx) {
				record(v)
			}
			return nil
		})
	}
	err := g.Wait()
	r.logger.Info("telemetry recorder stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// routes maps each path to the function that records its values.
func (r *Recorder) routes() map[string]func(store.Value) {
	routes := make(map[string]func(store.Value))
	for _, room := range r.catalog.Rooms() {
		routes[device.LightPath(room)] = func(v store.Value) { r.recordSwitch(KindLight, room, v) }
	}
	for _, fan := range r.catalog.Fans() {
		routes[device.FanPowerPath(fan)] = func(v store.Value) { r.recordSwitch(KindFan, fan, v) }
		routes[device.FanSpeedPath(fan)] = func(v store.Value) { r.recordFanSpeed(fan, v) }
	}
	routes[device.TemperaturePath] = func(v store.Value) { r.recordReading("temperature", v) }
	routes[device.HumidityPath] = func(v store.Value) { r.recordReading("humidity", v) }
	return routes
}

func (r *Recorder) recordSwitch(kind, id string, v store.Value) {
	sw := device.SwitchFrom(v)
	if sw == device.SwitchUnset {
		r.forget(func(f Forgetter) { f.ForgetSwitch(kind, id) })
		return
	}
	for _, s := range r.sinks {
		s.WriteSwitch(kind, id, sw == device.SwitchOn)
	}
}

func (r *Recorder) recordFanSpeed(fan string, v store.Value) {
	raw, ok := v.Int()
	if !ok {
		r.forget(func(f Forgetter) { f.ForgetFanSpeed(fan) })
		return
	}
	percent := device.SpeedToDisplay(raw)
	for _, s := range r.sinks {
		s.WriteFanSpeed(fan, percent)
	}
}

func (r *Recorder) recordReading(quantity string, v store.Value) {
	reading := device.ReadingFrom(v)
	if !reading.Present {
		r.forget(func(f Forgetter) { f.ForgetReading(sensorDHT22, quantity) })
		return
	}
	r.logger.Debug("reading recorded", "quantity", quantity, "value", reading.Value)
	for _, s := range r.sinks {
		s.WriteReading(sensorDHT22, quantity, reading.Value)
	}
}

func (r *Recorder) forget(fn func(Forgetter)) {
	for _, s := range r.sinks {
		if f, ok := s.(Forgetter); ok {
			fn(f)
		}
	}
}
