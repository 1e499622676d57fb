package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/homedash-core/internal/control"
)

const namespace = "homedash"

// Metrics holds the dashboard's Prometheus collectors.
//
// It satisfies realtime.Observer (listeners and write outcomes),
// auth.LoginObserver (sign-in attempts) and telemetry.Sink (confirmed
// device state), so a single value is handed to each of them at wiring
// time.
//
// Thread Safety:
//   - All methods are safe for concurrent use; collectors are lock-free.
type Metrics struct {
	registry *prometheus.Registry

	listeners      prometheus.Gauge
	writes         *prometheus.CounterVec
	writeDuration  prometheus.Histogram
	wsClients      prometheus.Gauge
	logins         *prometheus.CounterVec
	storeConnected prometheus.Gauge

	environment *prometheus.GaugeVec
	switchState *prometheus.GaugeVec
	fanSpeed    *prometheus.GaugeVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetrics(reg)
}

// NewMetrics creates the collectors and registers them on reg. The
// returned value's Handler serves reg only when reg is a *prometheus.Registry;
// otherwise it falls back to the default gatherer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_listeners",
			Help:      "Store paths with a listener held for open control views.",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Store writes by outcome.",
		}, []string{"outcome"}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_write_duration_seconds",
			Help:      "Time for a store write to settle.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Sign-in attempts by result.",
		}, []string{"result"}),
		storeConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_connected",
			Help:      "1 while the realtime store is reachable.",
		}),
		environment: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "environment",
			Help:      "Latest environment reading (degree celsius or percent).",
		}, []string{"sensor", "quantity"}),
		switchState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "switch_state",
			Help:      "Current state of a light or fan switch.",
		}, []string{"kind", "id"}),
		fanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_speed_percent",
			Help:      "Current fan speed in percent.",
		}, []string{"fan"}),
	}

	reg.MustRegister(m.listeners)
	reg.MustRegister(m.writes)
	reg.MustRegister(m.writeDuration)
	reg.MustRegister(m.wsClients)
	reg.MustRegister(m.logins)
	reg.MustRegister(m.storeConnected)
	reg.MustRegister(m.environment)
	reg.MustRegister(m.switchState)
	reg.MustRegister(m.fanSpeed)

	if r, ok := reg.(*prometheus.Registry); ok {
		m.registry = r
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ListenersChanged records the bridge's listener count.
func (m *Metrics) ListenersChanged(n int) {
	m.listeners.Set(float64(n))
}

// WriteFinished counts a settled write. Failures are labelled with the
// same kind the user sees in the notice.
func (m *Metrics) WriteFinished(_ string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = string(control.Classify(err))
	}
	m.writes.WithLabelValues(outcome).Inc()
	m.writeDuration.Observe(elapsed.Seconds())
}

// LoginAttempt counts a sign-in.
func (m *Metrics) LoginAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.logins.WithLabelValues(result).Inc()
}

// ClientConnected and ClientDisconnected track WebSocket clients.
func (m *Metrics) ClientConnected()    { m.wsClients.Inc() }
func (m *Metrics) ClientDisconnected() { m.wsClients.Dec() }

// StoreConnected records store reachability.
func (m *Metrics) StoreConnected(up bool) {
	m.storeConnected.Set(boolGauge(up))
}

// WriteReading records an environment reading.
func (m *Metrics) WriteReading(sensor, quantity string, value float64) {
	m.environment.WithLabelValues(sensor, quantity).Set(value)
}

// WriteSwitch records a switch state.
func (m *Metrics) WriteSwitch(kind, id string, on bool) {
	m.switchState.WithLabelValues(kind, id).Set(boolGauge(on))
}

// WriteFanSpeed records a fan speed.
func (m *Metrics) WriteFanSpeed(fan string, percent int) {
	m.fanSpeed.WithLabelValues(fan).Set(float64(percent))
}

// ForgetReading removes a reading that became absent, so a stale value is
// not scraped as current.
func (m *Metrics) ForgetReading(sensor, quantity string) {
	m.environment.DeleteLabelValues(sensor, quantity)
}

// ForgetSwitch removes a switch that became unset.
func (m *Metrics) ForgetSwitch(kind, id string) {
	m.switchState.DeleteLabelValues(kind, id)
}

// ForgetFanSpeed removes a fan speed that became absent.
func (m *Metrics) ForgetFanSpeed(fan string) {
	m.fanSpeed.DeleteLabelValues(fan)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
