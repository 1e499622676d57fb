package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Backend.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	values   map[string]Value
	watchers map[string]map[uint64]*watcher
	nextID   uint64
	seq      uint64
	closed   bool
	logger   Logger
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string]Value),
		watchers: make(map[string]map[uint64]*watcher),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (m *Memory) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// Watch implements Backend. fn receives the current value before Watch
// returns.
func (m *Memory) Watch(p string, fn func(Value)) (func(), error) {
	p, err := Clean(p)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("store: nil watch callback")
	}

	w := &watcher{fn: fn}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	id := m.nextID
	m.nextID++
	if m.watchers[p] == nil {
		m.watchers[p] = make(map[uint64]*watcher)
	}
	m.watchers[p][id] = w
	// The initial value takes a sequence number of its own so a
	// concurrent Set is ordered after it.
	m.seq++
	initial := delivery{w: w, seq: m.seq, v: m.values[p]}
	m.mu.Unlock()

	w.deliver(initial.seq, initial.v)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers[p], id)
			if len(m.watchers[p]) == 0 {
				delete(m.watchers, p)
			}
			m.mu.Unlock()
			w.stop()
		})
	}, nil
}

// Set implements Backend.
func (m *Memory) Set(ctx context.Context, p string, v Value) error {
	p, err := Clean(p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if v.Present() {
		m.values[p] = v
	} else {
		delete(m.values, p)
	}
	m.seq++
	ds := make([]delivery, 0, len(m.watchers[p]))
	for _, w := range m.watchers[p] {
		ds = append(ds, delivery{w: w, seq: m.seq, v: v})
	}
	logger := m.logger
	m.mu.Unlock()

	logger.Debug("store value set", "path", p, "value", v.String(), "watchers", len(ds))
	deliverAll(ds)
	return nil
}

// Get returns the stored value of path.
func (m *Memory) Get(p string) (Value, error) {
	p, err := Clean(p)
	if err != nil {
		return Absent(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[p], nil
}

// Listeners returns the number of live watchers across all paths.
func (m *Memory) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ws := range m.watchers {
		n += len(ws)
	}
	return n
}

// Close drops every watcher. Later calls return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	var ws []*watcher
	for _, byID := range m.watchers {
		for _, w := range byID {
			ws = append(ws, w)
		}
	}
	m.watchers = make(map[string]map[uint64]*watcher)
	m.closed = true
	m.mu.Unlock()

	for _, w := range ws {
		w.stop()
	}
	return nil
}
