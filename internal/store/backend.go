package store

import (
	"context"
	"sync"
)

// Backend is a realtime key-value store.
type Backend interface {
	// Watch calls fn with the current value of path and again after every
	// change, until cancel is called. Deliveries to one fn never overlap
	// and never go backwards: a value older than one already delivered is
	// dropped. After cancel returns fn is not called again. cancel must
	// not be called from inside fn.
	Watch(path string, fn func(Value)) (cancel func(), err error)

	// Set stores v at path. Setting Absent removes the value. Set returns
	// once the backend has accepted the write; watchers learn about it
	// through their own feed.
	Set(ctx context.Context, path string, v Value) error
}

// Logger defines the logging interface used by the backends.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// watcher serializes deliveries to one callback.
type watcher struct {
	fn func(Value)

	mu        sync.Mutex
	last      uint64
	cancelled bool
}

// deliver calls fn with v unless the watcher was cancelled or has already
// seen a newer sequence number.
func (w *watcher) deliver(seq uint64, v Value) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelled || seq <= w.last {
		return
	}
	w.last = seq
	w.fn(v)
}

// stop waits for an in-flight delivery and blocks later ones.
func (w *watcher) stop() {
	w.mu.Lock()
	w.cancelled = true
	w.mu.Unlock()
}

type delivery struct {
	w   *watcher
	seq uint64
	v   Value
}

func deliverAll(ds []delivery) {
	for _, d := range ds {
		d.w.deliver(d.seq, d.v)
	}
}
