package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/homedash-core/internal/realtime"
	"github.com/nerrad567/homedash-core/internal/store"
)

func TestWriteFinished_Outcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.WriteFinished("Lampu/dapur", nil, 10*time.Millisecond)
	m.WriteFinished("Lampu/dapur", nil, 10*time.Millisecond)
	m.WriteFinished("Lampu/dapur", store.ErrPermissionDenied, time.Millisecond)
	m.WriteFinished("Kipas/kamar", realtime.ErrWriteTimeout, 5*time.Second)
	m.WriteFinished("Kipas/kamar", store.ErrUnavailable, time.Millisecond)
	m.WriteFinished("Kipas/kamar", errors.New("boom"), time.Millisecond)

	tests := []struct {
		outcome string
		want    float64
	}{
		{"ok", 2},
		{"access_denied", 1},
		{"timeout", 1},
		{"unavailable", 1},
		{"error", 1},
	}
	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			if got := testutil.ToFloat64(m.writes.WithLabelValues(tt.outcome)); got != tt.want {
				t.Errorf("writes{outcome=%q} = %v, want %v", tt.outcome, got, tt.want)
			}
		})
	}
	if n := testutil.CollectAndCount(m.writeDuration); n != 1 {
		t.Errorf("write duration series = %d, want 1", n)
	}
}

func TestGauges(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ListenersChanged(3)
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()
	m.StoreConnected(true)

	if got := testutil.ToFloat64(m.listeners); got != 3 {
		t.Errorf("listeners = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.wsClients); got != 1 {
		t.Errorf("websocket clients = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.storeConnected); got != 1 {
		t.Errorf("store connected = %v, want 1", got)
	}

	m.StoreConnected(false)
	if got := testutil.ToFloat64(m.storeConnected); got != 0 {
		t.Errorf("store connected = %v, want 0", got)
	}
}

func TestLoginAttempt(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.LoginAttempt(true)
	m.LoginAttempt(false)
	m.LoginAttempt(false)

	if got := testutil.ToFloat64(m.logins.WithLabelValues("success")); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues("failure")); got != 2 {
		t.Errorf("failure = %v, want 2", got)
	}
}

func TestDeviceState(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.WriteReading("dht22", "temperature", 26.5)
	m.WriteSwitch("light", "dapur", true)
	m.WriteSwitch("fan", "kamar", false)
	m.WriteFanSpeed("kamar", 50)

	if got := testutil.ToFloat64(m.environment.WithLabelValues("dht22", "temperature")); got != 26.5 {
		t.Errorf("temperature = %v, want 26.5", got)
	}
	if got := testutil.ToFloat64(m.switchState.WithLabelValues("light", "dapur")); got != 1 {
		t.Errorf("light dapur = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.fanSpeed.WithLabelValues("kamar")); got != 50 {
		t.Errorf("fan speed = %v, want 50", got)
	}

	m.ForgetReading("dht22", "temperature")
	m.ForgetSwitch("light", "dapur")
	m.ForgetFanSpeed("kamar")
	if n := testutil.CollectAndCount(m.environment); n != 0 {
		t.Errorf("environment series = %d, want 0", n)
	}
	if n := testutil.CollectAndCount(m.switchState); n != 1 {
		t.Errorf("switch series = %d, want 1", n)
	}
	if n := testutil.CollectAndCount(m.fanSpeed); n != 0 {
		t.Errorf("fan speed series = %d, want 0", n)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.WriteSwitch("light", "dapur", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`homedash_switch_state{id="dapur",kind="light"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}
