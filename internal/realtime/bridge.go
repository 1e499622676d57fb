package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homedash-core/internal/store"
)

// DefaultWriteTimeout bounds a write when none is configured.
const DefaultWriteTimeout = 5 * time.Second

// Logger defines the logging interface used by the Bridge.
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

// Observer is told about listener and write activity. The metrics
// package implements it.
type Observer interface {
	ListenersChanged(n int)
	WriteFinished(path string, err error, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ListenersChanged(int)                        {}
func (noopObserver) WriteFinished(string, error, time.Duration) {}

// Bridge multiplexes store paths onto streams and forwards writes.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Bridge struct {
	backend      store.Backend
	writeTimeout time.Duration

	mu       sync.Mutex
	feeds    map[string]*feed
	logger   Logger
	observer Observer
}

// feed is the single backend listener shared by every stream of a path.
type feed struct {
	path    string
	streams map[*Stream]struct{}
	latest  store.Value
	seen    bool
	cancel  func()

	// ready is closed once the backend listener is open or has failed.
	ready chan struct{}
	err   error
}

// NewBridge returns a bridge over backend. A writeTimeout of zero uses
// DefaultWriteTimeout.
func NewBridge(backend store.Backend, writeTimeout time.Duration) *Bridge {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Bridge{
		backend:      backend,
		writeTimeout: writeTimeout,
		feeds:        make(map[string]*feed),
		logger:       noopLogger{},
		observer:     noopObserver{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// SetObserver sets the observer for listener and write activity.
func (b *Bridge) SetObserver(o Observer) {
	b.mu.Lock()
	b.observer = o
	b.mu.Unlock()
}

func (b *Bridge) hooks() (Logger, Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logger, b.observer
}

// Subscribe opens a stream on path. The stream's first value is the
// path's current value (absent if unset).
//
// Returns:
//   - *Stream: Cancel it when the view using it goes away
//   - error: store.ErrInvalidPath or the backend's Watch error
func (b *Bridge) Subscribe(path string) (*Stream, error) {
	path, err := store.Clean(path)
	if err != nil {
		return nil, err
	}

	s := newStream(b, path)

	b.mu.Lock()
	f, joined := b.feeds[path]
	if !joined {
		f = &feed{
			path:    path,
			streams: make(map[*Stream]struct{}),
			ready:   make(chan struct{}),
		}
		b.feeds[path] = f
	}
	f.streams[s] = struct{}{}
	s.feed = f
	if f.seen {
		s.push(f.latest)
	}
	listeners := len(b.feeds)
	logger, observer := b.logger, b.observer
	b.mu.Unlock()

	if joined {
		<-f.ready
		if f.err != nil {
			s.Cancel()
			return nil, f.err
		}
		return s, nil
	}

	observer.ListenersChanged(listeners)
	cancel, err := b.backend.Watch(path, func(v store.Value) { b.deliver(f, v) })
	if err != nil {
		f.err = fmt.Errorf("realtime: subscribe %s: %w", path, err)
		b.mu.Lock()
		if b.feeds[path] == f {
			delete(b.feeds, path)
		}
		listeners = len(b.feeds)
		b.mu.Unlock()
		close(f.ready)
		observer.ListenersChanged(listeners)
		s.markCancelled()
		logger.Warn("subscribe failed", "path", path, "error", err)
		return nil, f.err
	}
	f.cancel = cancel
	close(f.ready)
	logger.Debug("listener opened", "path", path)
	return s, nil
}

// deliver records v as the feed's latest value and hands it to every
// stream of the feed.
func (b *Bridge) deliver(f *feed, v store.Value) {
	b.mu.Lock()
	f.latest = v
	f.seen = true
	streams := make([]*Stream, 0, len(f.streams))
	for s := range f.streams {
		streams = append(streams, s)
	}
	b.mu.Unlock()

	for _, s := range streams {
		s.push(v)
	}
}

// detach removes s from its feed and closes the backend listener when s
// was the last stream.
func (b *Bridge) detach(s *Stream) {
	f := s.feed
	if f == nil {
		return
	}

	b.mu.Lock()
	delete(f.streams, s)
	release := len(f.streams) == 0 && b.feeds[f.path] == f
	if release {
		delete(b.feeds, f.path)
	}
	listeners := len(b.feeds)
	logger, observer := b.logger, b.observer
	b.mu.Unlock()

	if !release {
		return
	}
	<-f.ready
	if f.cancel != nil {
		f.cancel()
	}
	observer.ListenersChanged(listeners)
	logger.Debug("listener released", "path", f.path)
}

// Listeners returns the number of open backend listeners.
func (b *Bridge) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.feeds)
}

// Write sends v to path. It returns once the backend accepted or rejected
// the write; nothing is updated locally.
//
// Returns:
//   - error: ErrWriteTimeout when the write timeout elapsed, otherwise
//     the backend's error (store.ErrPermissionDenied,
//     store.ErrUnavailable, ...)
func (b *Bridge) Write(ctx context.Context, path string, v store.Value) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}

	logger, observer := b.hooks()
	start := time.Now()

	wctx, cancel := context.WithTimeoutCause(ctx, b.writeTimeout, ErrWriteTimeout)
	defer cancel()

	err = b.backend.Set(wctx, path, v)
	if err != nil && errors.Is(context.Cause(wctx), ErrWriteTimeout) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %v: %s", ErrWriteTimeout, b.writeTimeout, path)
	}

	elapsed := time.Since(start)
	observer.WriteFinished(path, err, elapsed)
	if err != nil {
		logger.Debug("write failed", "path", path, "error", err)
		return err
	}
	logger.Debug("write accepted", "path", path, "value", v.String(), "elapsed", elapsed)
	return nil
}
