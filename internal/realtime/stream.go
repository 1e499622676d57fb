package realtime

import (
	"context"
	"iter"
	"sync"

	"github.com/nerrad567/homedash-core/internal/store"
)

// Stream is one subscriber's view of a path.
//
// A stream holds at most one undelivered value. A consumer that falls
// behind skips intermediate values but always receives the latest one.
//
// Thread Safety:
//   - Next, Values and Cancel may be called from any goroutine. Only one
//     goroutine should consume a stream.
type Stream struct {
	path   string
	bridge *Bridge
	feed   *feed

	mu        sync.Mutex
	pending   chan store.Value
	done      chan struct{}
	cancelled bool
	once      sync.Once
}

func newStream(b *Bridge, path string) *Stream {
	return &Stream{
		path:    path,
		bridge:  b,
		pending: make(chan store.Value, 1),
		done:    make(chan struct{}),
	}
}

// Path returns the path the stream follows.
func (s *Stream) Path() string {
	return s.path
}

// push replaces any undelivered value with v.
func (s *Stream) push(v store.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	select {
	case <-s.pending:
	default:
	}
	s.pending <- v
}

// Next blocks until the next value arrives.
//
// Returns:
//   - store.Value: The latest value of the path
//   - error: ErrCancelled after Cancel, or ctx.Err()
func (s *Stream) Next(ctx context.Context) (store.Value, error) {
	select {
	case <-s.done:
		return store.Absent(), ErrCancelled
	default:
	}
	select {
	case v := <-s.pending:
		return v, nil
	case <-s.done:
		return store.Absent(), ErrCancelled
	case <-ctx.Done():
		return store.Absent(), ctx.Err()
	}
}

// Values iterates over the stream until it is cancelled or ctx ends.
// Breaking out of the loop does not cancel the stream.
func (s *Stream) Values(ctx context.Context) iter.Seq[store.Value] {
	return func(yield func(store.Value) bool) {
		for {
			v, err := s.Next(ctx)
			if err != nil || !yield(v) {
				return
			}
		}
	}
}

// Cancel stops the stream. Once Cancel returns, Next yields no further
// values, whatever happens to the path. Cancel is idempotent.
func (s *Stream) Cancel() {
	s.once.Do(func() {
		s.markCancelled()
		s.bridge.detach(s)
	})
}

// Done is closed by Cancel.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) markCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	select {
	case <-s.pending:
	default:
	}
	close(s.done)
}
