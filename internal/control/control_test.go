package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/homedash-core/internal/device"
	"github.com/nerrad567/homedash-core/internal/infrastructure/config"
	"github.com/nerrad567/homedash-core/internal/realtime"
	"github.com/nerrad567/homedash-core/internal/session"
	"github.com/nerrad567/homedash-core/internal/store"
)

const waitFor = 2 * time.Second

// countingBackend records every write that reaches the store.
type countingBackend struct {
	store.Backend

	mu     sync.Mutex
	writes []string
}

func (b *countingBackend) Set(ctx context.Context, p string, v store.Value) error {
	b.mu.Lock()
	b.writes = append(b.writes, fmt.Sprintf("%s=%s", p, v))
	b.mu.Unlock()
	return b.Backend.Set(ctx, p, v)
}

func (b *countingBackend) Writes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.writes...)
}

// heldBackend blocks writes until release is closed.
type heldBackend struct {
	store.Backend
	release chan struct{}
}

func (b *heldBackend) Set(ctx context.Context, p string, v store.Value) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.Backend.Set(ctx, p, v)
}

// quietBackend delivers nothing to watchers until release is closed,
// holding surfaces in their loading state.
type quietBackend struct {
	store.Backend
	release chan struct{}
}

func (b *quietBackend) Watch(p string, fn func(store.Value)) (func(), error) {
	stop := make(chan struct{})
	var (
		once   sync.Once
		mu     sync.Mutex
		cancel func()
	)
	go func() {
		select {
		case <-b.release:
		case <-stop:
			return
		}
		mu.Lock()
		defer mu.Unlock()
		select {
		case <-stop:
			return
		default:
		}
		if c, err := b.Backend.Watch(p, fn); err == nil {
			cancel = c
		}
	}()
	return func() {
		once.Do(func() {
			close(stop)
			mu.Lock()
			c := cancel
			mu.Unlock()
			if c != nil {
				c()
			}
		})
	}, nil
}

// overtakingBackend follows every write to path with a write of other,
// as if a second writer got in right behind.
type overtakingBackend struct {
	store.Backend
	path  string
	other store.Value
}

func (b *overtakingBackend) Set(ctx context.Context, p string, v store.Value) error {
	if err := b.Backend.Set(ctx, p, v); err != nil {
		return err
	}
	if p != b.path {
		return nil
	}
	return b.Backend.Set(ctx, p, b.other)
}

type harness struct {
	mem     *store.Memory
	writes  *countingBackend
	bridge  *realtime.Bridge
	deps    Deps
	catalog *device.Catalog
}

// newHarness builds guarded memory storage behind a write counter.
// wrap, when set, sits between the counter and the guard.
func newHarness(t *testing.T, writeTimeout time.Duration, wrap func(store.Backend) store.Backend) *harness {
	t.Helper()

	mem := store.NewMemory()
	guard, err := store.NewGuard(config.DefaultStoreRules())
	require.NoError(t, err)

	var backend store.Backend = store.Protect(mem, guard)
	if wrap != nil {
		backend = wrap(backend)
	}
	writes := &countingBackend{Backend: backend}

	catalog, err := device.NewCatalog(config.DevicesConfig{
		Rooms: []string{"dapur", "tamu", "makan"},
		Fans:  []string{"kamar"},
	})
	require.NoError(t, err)

	bridge := realtime.NewBridge(writes, writeTimeout)
	return &harness{
		mem:     mem,
		writes:  writes,
		bridge:  bridge,
		catalog: catalog,
		deps:    Deps{Bridge: bridge, Catalog: catalog},
	}
}

func (h *harness) seed(t *testing.T, path string, v store.Value) {
	t.Helper()
	require.NoError(t, h.mem.Set(context.Background(), path, v))
}

func ownerEnv() Env {
	return Env{
		Principal: session.Principal{UserID: "usr-owner", Email: "owner@rumah.id", Role: "owner"},
		Theme:     ThemeDark,
	}
}

func viewerEnv() Env {
	return Env{
		Principal: session.Principal{UserID: "usr-viewer", Email: "tamu@rumah.id", DisplayName: "Tamu", Role: "viewer"},
		Theme:     ThemeLight,
	}
}

// frames records rendered frames.
type frames struct {
	mu  sync.Mutex
	all []Frame
}

func (r *frames) render(f Frame) {
	r.mu.Lock()
	r.all = append(r.all, f)
	r.mu.Unlock()
}

func (r *frames) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.all)
}

func (r *frames) last() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Frame{}
	}
	return r.all[len(r.all)-1]
}

func openReady(t *testing.T, s Surface) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Ready(ctx))
	t.Cleanup(s.Close)
}

func snapshot(t *testing.T, s Surface) Frame {
	t.Helper()
	f, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return f
}

// current is snapshot for Eventually conditions, which run off the test
// goroutine.
func current(s Surface) Frame {
	f, _ := s.Snapshot(context.Background()) //nolint:errcheck // zero frame fails the condition
	return f
}

func light(f Frame, room string) LightTile {
	for _, l := range f.Lights {
		if l.Room == room {
			return l
		}
	}
	return LightTile{}
}

func TestLights_ToggleWritesOneNegation(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.seed(t, "Lampu/dapur", store.BoolValue(false))

	l := NewLights(h.deps, ownerEnv(), nil)
	openReady(t, l)
	assert.Equal(t, device.SwitchOff, light(snapshot(t, l), "dapur").State)

	require.NoError(t, l.Toggle(context.Background(), "dapur"))

	assert.Equal(t, []string{"Lampu/dapur=true"}, h.writes.Writes())
	assert.Eventually(t, func() bool {
		return light(current(l), "dapur").State == device.SwitchOn
	}, waitFor, 5*time.Millisecond)
}

func TestLights_UnsetNegatesToTrue(t *testing.T) {
	h := newHarness(t, 0, nil)
	l := NewLights(h.deps, ownerEnv(), nil)
	openReady(t, l)

	tile := light(snapshot(t, l), "tamu")
	assert.Equal(t, device.SwitchUnset, tile.State, "unset renders distinctly")

	require.NoError(t, l.Toggle(context.Background(), "tamu"))
	assert.Equal(t, []string{"Lampu/tamu=true"}, h.writes.Writes())
}

func TestLights_DeniedToggleKeepsStateAndRaisesNotice(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.seed(t, "Lampu/dapur", store.BoolValue(false))

	var r frames
	l := NewLights(h.deps, viewerEnv(), r.render)
	openReady(t, l)

	err := l.Toggle(context.Background(), "dapur")
	require.ErrorIs(t, err, store.ErrPermissionDenied)

	f := snapshot(t, l)
	assert.Equal(t, device.SwitchOff, light(f, "dapur").State)
	assert.False(t, light(f, "dapur").Pending)
	require.Len(t, f.Notices, 1)
	assert.Equal(t, NoticeAccessDenied, f.Notices[0].Kind)
	assert.Equal(t, "Lampu/dapur", f.Notices[0].Path)
	assert.Equal(t, "Tamu", f.User)

	v, err := h.mem.Get("Lampu/dapur")
	require.NoError(t, err)
	assert.True(t, v.Equal(store.BoolValue(false)), "store unchanged")

	require.NoError(t, l.Dismiss(f.Notices[0].ID))
	assert.Empty(t, snapshot(t, l).Notices)
}

func TestLights_ExternalChangeRerendersWithoutWrite(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.seed(t, "Lampu/dapur", store.BoolValue(false))

	var r frames
	l := NewLights(h.deps, ownerEnv(), r.render)
	openReady(t, l)

	// Hardware flips the switch.
	h.seed(t, "Lampu/dapur", store.BoolValue(true))

	assert.Eventually(t, func() bool {
		return light(r.last(), "dapur").State == device.SwitchOn
	}, waitFor, 5*time.Millisecond)
	assert.Empty(t, h.writes.Writes())
}

func TestLights_UnknownRoom(t *testing.T) {
	h := newHarness(t, 0, nil)
	l := NewLights(h.deps, ownerEnv(), nil)
	openReady(t, l)

	assert.ErrorIs(t, l.Toggle(context.Background(), "garasi"), device.ErrRoomNotFound)
	assert.Empty(t, h.writes.Writes())
}

func TestOpen_UnauthenticatedSubscribesNothing(t *testing.T) {
	h := newHarness(t, 0, nil)
	s := NewFans(h.deps, Env{Theme: ThemeLight}, nil)

	err := s.Open(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Zero(t, h.bridge.Listeners())
	assert.Zero(t, h.mem.Listeners())
}

func TestOpen_Twice(t *testing.T) {
	h := newHarness(t, 0, nil)
	d := NewDashboard(h.deps, ownerEnv(), nil)
	openReady(t, d)
	assert.ErrorIs(t, d.Open(context.Background()), ErrAlreadyOpen)
}

func TestClose_StopsRenderingAndReleasesListeners(t *testing.T) {
	h := newHarness(t, 0, nil)

	var r frames
	l := NewLights(h.deps, ownerEnv(), r.render)
	ctx := context.Background()
	require.NoError(t, l.Open(ctx))
	require.NoError(t, l.Ready(ctx))
	assert.Equal(t, 3, h.bridge.Listeners())

	l.Close()
	l.Close()
	rendered := r.count()

	h.seed(t, "Lampu/dapur", store.BoolValue(true))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, rendered, r.count(), "no render after Close")
	assert.Zero(t, h.bridge.Listeners())
	assert.Zero(t, h.mem.Listeners())
	assert.ErrorIs(t, l.Toggle(ctx, "dapur"), ErrClosed)
	_, err := l.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestIntentBeforeOpen(t *testing.T) {
	h := newHarness(t, 0, nil)
	l := NewLights(h.deps, ownerEnv(), nil)
	assert.ErrorIs(t, l.Toggle(context.Background(), "dapur"), ErrNotOpen)
	l.Close()
	assert.ErrorIs(t, l.Open(context.Background()), ErrClosed)
}

func TestDashboard_AbsentTemperatureShowsPlaceholder(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.seed(t, "dht22/humidity", store.IntValue(65))

	d := NewDashboard(h.deps, ownerEnv(), nil)
	openReady(t, d)

	env := snapshot(t, d).Environment
	require.NotNil(t, env)
	assert.Equal(t, device.Placeholder, env.Temperature.Display)
	assert.Nil(t, env.Temperature.Value)
	assert.Zero(t, env.Temperature.Fraction)
	assert.Equal(t, "65", env.Humidity.Display)
	assert.InDelta(t, 0.65, env.Humidity.Fraction, 1e-9)
}

func TestDashboard_ReadingUpdates(t *testing.T) {
	h := newHarness(t, 0, nil)
	d := NewDashboard(h.deps, ownerEnv(), nil)
	openReady(t, d)

	h.seed(t, "dht22/temperature", store.FloatValue(26.5))
	assert.Eventually(t, func() bool {
		env := current(d).Environment
		return env != nil && env.Temperature.Display == "26.5"
	}, waitFor, 5*time.Millisecond)
	assert.Empty(t, h.writes.Writes())
}

func fan(f Frame, id string) FanTile {
	for _, t := range f.Fans {
		if t.ID == id {
			return t
		}
	}
	return FanTile{}
}

func TestFans_SpeedDraftUntilEcho(t *testing.T) {
	held := &heldBackend{release: make(chan struct{})}
	h := newHarness(t, 0, func(b store.Backend) store.Backend {
		held.Backend = b
		return held
	})
	h.seed(t, "Kipas/kecepatankamar", store.IntValue(36))

	s := NewFans(h.deps, ownerEnv(), nil)
	openReady(t, s)
	tile := fan(snapshot(t, s), "kamar")
	require.NotNil(t, tile.Speed)
	assert.Equal(t, 20, *tile.Speed)

	result := make(chan error, 1)
	go func() { result <- s.SetSpeed(context.Background(), "kamar", 50) }()

	assert.Eventually(t, func() bool {
		return fan(current(s), "kamar").Optimistic
	}, waitFor, 5*time.Millisecond)
	tile = fan(snapshot(t, s), "kamar")
	assert.Equal(t, 20, *tile.Speed, "confirmed speed unchanged while drafting")
	assert.Equal(t, 50, *tile.Draft)
	assert.Equal(t, 50, *tile.Shown())
	assert.True(t, tile.Pending)

	close(held.release)
	require.NoError(t, <-result)

	assert.Eventually(t, func() bool {
		tile := fan(current(s), "kamar")
		return !tile.Optimistic && tile.Speed != nil && *tile.Speed == 50
	}, waitFor, 5*time.Millisecond)

	v, err := h.mem.Get("Kipas/kecepatankamar")
	require.NoError(t, err)
	assert.True(t, v.Equal(store.IntValue(90)))
}

func TestFans_FailedSpeedWriteDropsDraft(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.seed(t, "Kipas/kecepatankamar", store.IntValue(180))

	s := NewFans(h.deps, viewerEnv(), nil)
	openReady(t, s)

	err := s.SetSpeed(context.Background(), "kamar", 10)
	require.ErrorIs(t, err, store.ErrPermissionDenied)

	tile := fan(snapshot(t, s), "kamar")
	assert.False(t, tile.Optimistic)
	assert.Nil(t, tile.Draft)
	assert.Equal(t, 100, *tile.Speed)
	require.Len(t, snapshot(t, s).Notices, 1)
}

func TestFans_InvalidSpeed(t *testing.T) {
	h := newHarness(t, 0, nil)
	s := NewFans(h.deps, ownerEnv(), nil)
	openReady(t, s)

	assert.ErrorIs(t, s.SetSpeed(context.Background(), "kamar", 101), device.ErrInvalidSpeed)
	assert.ErrorIs(t, s.SetSpeed(context.Background(), "loteng", 50), device.ErrFanNotFound)
	assert.Empty(t, h.writes.Writes())
}

func TestFans_ToggleIndependentOfSpeed(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.seed(t, "Kipas/kamar", store.BoolValue(true))
	h.seed(t, "Kipas/kecepatankamar", store.IntValue(90))

	s := NewFans(h.deps, ownerEnv(), nil)
	openReady(t, s)

	require.NoError(t, s.Toggle(context.Background(), "kamar"))
	assert.Equal(t, []string{"Kipas/kamar=false"}, h.writes.Writes())
}

func TestLights_ToggleWhileLoadingWaitsForValue(t *testing.T) {
	quiet := &quietBackend{release: make(chan struct{})}
	h := newHarness(t, 0, func(b store.Backend) store.Backend {
		quiet.Backend = b
		return quiet
	})
	h.seed(t, "Lampu/dapur", store.BoolValue(true))

	l := NewLights(h.deps, ownerEnv(), nil)
	require.NoError(t, l.Open(context.Background()))
	t.Cleanup(l.Close)

	f := snapshot(t, l)
	require.True(t, f.Loading)
	assert.Equal(t, device.SwitchUnset, light(f, "dapur").State)

	result := make(chan error, 1)
	go func() { result <- l.Toggle(context.Background(), "dapur") }()

	assert.Never(t, func() bool {
		return len(h.writes.Writes()) > 0
	}, 50*time.Millisecond, 5*time.Millisecond, "no write before the value is known")

	close(quiet.release)
	require.NoError(t, <-result)

	assert.Equal(t, []string{"Lampu/dapur=false"}, h.writes.Writes())
	assert.Eventually(t, func() bool {
		return light(current(l), "dapur").State == device.SwitchOff
	}, waitFor, 5*time.Millisecond)
}

func TestLights_ToggleWhileLoadingHonoursContext(t *testing.T) {
	quiet := &quietBackend{release: make(chan struct{})}
	h := newHarness(t, 0, func(b store.Backend) store.Backend {
		quiet.Backend = b
		return quiet
	})
	h.seed(t, "Lampu/dapur", store.BoolValue(true))

	l := NewLights(h.deps, ownerEnv(), nil)
	require.NoError(t, l.Open(context.Background()))
	t.Cleanup(l.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Toggle(ctx, "dapur"), context.DeadlineExceeded)
	assert.Empty(t, h.writes.Writes())
	assert.Empty(t, snapshot(t, l).Notices)
}

func TestFans_ToggleWhileLoadingWaitsForValue(t *testing.T) {
	quiet := &quietBackend{release: make(chan struct{})}
	h := newHarness(t, 0, func(b store.Backend) store.Backend {
		quiet.Backend = b
		return quiet
	})
	h.seed(t, "Kipas/kamar", store.BoolValue(true))

	s := NewFans(h.deps, ownerEnv(), nil)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(s.Close)
	require.True(t, snapshot(t, s).Loading)

	result := make(chan error, 1)
	go func() { result <- s.Toggle(context.Background(), "kamar") }()

	assert.Never(t, func() bool {
		return len(h.writes.Writes()) > 0
	}, 50*time.Millisecond, 5*time.Millisecond, "no write before the value is known")

	close(quiet.release)
	require.NoError(t, <-result)
	assert.Equal(t, []string{"Kipas/kamar=false"}, h.writes.Writes())
}

func TestFans_OvertakenEchoDropsDraft(t *testing.T) {
	h := newHarness(t, 0, func(b store.Backend) store.Backend {
		return &overtakingBackend{Backend: b, path: "Kipas/kecepatankamar", other: store.IntValue(54)}
	})
	h.seed(t, "Kipas/kecepatankamar", store.IntValue(36))

	s := NewFans(h.deps, ownerEnv(), nil)
	openReady(t, s)

	require.NoError(t, s.SetSpeed(context.Background(), "kamar", 50))

	assert.Eventually(t, func() bool {
		tile := fan(current(s), "kamar")
		return !tile.Optimistic && tile.Speed != nil && *tile.Speed == 30
	}, waitFor, 5*time.Millisecond)
	assert.Nil(t, fan(snapshot(t, s), "kamar").Draft)
}

func TestWriteTimeoutRaisesTimeoutNotice(t *testing.T) {
	held := &heldBackend{release: make(chan struct{})}
	h := newHarness(t, 20*time.Millisecond, func(b store.Backend) store.Backend {
		held.Backend = b
		return held
	})
	h.seed(t, "Lampu/makan", store.BoolValue(true))

	l := NewLights(h.deps, ownerEnv(), nil)
	openReady(t, l)

	err := l.Toggle(context.Background(), "makan")
	require.ErrorIs(t, err, realtime.ErrWriteTimeout)

	f := snapshot(t, l)
	require.Len(t, f.Notices, 1)
	assert.Equal(t, NoticeTimeout, f.Notices[0].Kind)
	assert.Equal(t, device.SwitchOn, light(f, "makan").State)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want NoticeKind
	}{
		{store.ErrPermissionDenied, NoticeAccessDenied},
		{fmt.Errorf("set: %w", store.ErrPermissionDenied), NoticeAccessDenied},
		{store.ErrUnavailable, NoticeUnavailable},
		{realtime.ErrWriteTimeout, NoticeTimeout},
		{context.DeadlineExceeded, NoticeTimeout},
		{errors.New("boom"), NoticeError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestFrame_CarriesEnv(t *testing.T) {
	h := newHarness(t, 0, nil)
	var r frames
	d := NewDashboard(h.deps, ownerEnv(), r.render)
	openReady(t, d)

	f := snapshot(t, d)
	assert.Equal(t, ViewDashboard, f.View)
	assert.Equal(t, ThemeDark, f.Theme)
	assert.Equal(t, "owner@rumah.id", f.User, "email stands in for a missing display name")
	assert.False(t, f.Loading)
	assert.NotNil(t, f.Notices)
	assert.Positive(t, r.count())
}

func TestNew(t *testing.T) {
	h := newHarness(t, 0, nil)
	for _, v := range []View{ViewLights, ViewFan, ViewDashboard} {
		s, err := New(v, h.deps, ownerEnv(), nil)
		require.NoError(t, err)
		assert.Equal(t, v, s.View())
	}
	_, err := New("login", h.deps, ownerEnv(), nil)
	assert.Error(t, err)
}

func TestParseTheme(t *testing.T) {
	assert.Equal(t, ThemeDark, ParseTheme("dark"))
	assert.Equal(t, ThemeLight, ParseTheme("light"))
	assert.Equal(t, ThemeLight, ParseTheme(""))
}
