package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homedash-core/internal/infrastructure/mqtt"
)

// DefaultSettleWindow is how long a new feed waits for a retained message
// before reporting the path as absent.
const DefaultSettleWindow = 250 * time.Millisecond

// broker is the part of *mqtt.Client the backend uses.
type broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishRetained(topic string, payload []byte) error
	QoS() byte
}

// MQTT is a Backend storing each path as a retained message under
// topics.State(path).
//
// Retained messages give the store its semantics: the broker keeps the
// last value of every topic and hands it to each new subscriber, and an
// empty retained payload removes the value. A broker has no way to say
// "nothing retained here", so a feed that receives nothing within the
// settle window reports Absent.
//
// All watchers of one path share a single broker subscription, released
// with the last watcher.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type MQTT struct {
	broker broker
	topics mqtt.Topics
	settle time.Duration

	// subMu serializes broker Subscribe/Unsubscribe so an unsubscribe for
	// a released feed cannot overtake the subscribe of its replacement.
	subMu sync.Mutex

	mu     sync.Mutex
	feeds  map[string]*feed
	nextID uint64
	logger Logger
}

type feed struct {
	topic    string
	watchers map[uint64]*watcher
	value    Value
	seen     bool
	seq      uint64
	settle   *time.Timer

	// ready is closed once the broker subscription is in place or failed.
	ready chan struct{}
	err   error
}

// NewMQTT returns a backend on top of client. A settle window of zero
// uses DefaultSettleWindow.
func NewMQTT(client *mqtt.Client, settle time.Duration) *MQTT {
	return newMQTT(client, client.Topics(), settle)
}

func newMQTT(b broker, topics mqtt.Topics, settle time.Duration) *MQTT {
	if settle <= 0 {
		settle = DefaultSettleWindow
	}
	return &MQTT{
		broker: b,
		topics: topics,
		settle: settle,
		feeds:  make(map[string]*feed),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the backend.
func (s *MQTT) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

func (s *MQTT) log() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// Watch implements Backend. The first watcher of a path subscribes on the
// broker; later watchers join the feed and immediately receive its latest
// value.
func (s *MQTT) Watch(p string, fn func(Value)) (func(), error) {
	p, err := Clean(p)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("store: nil watch callback")
	}

	w := &watcher{fn: fn}

	s.mu.Lock()
	f, joined := s.feeds[p]
	if !joined {
		f = &feed{
			topic:    s.topics.State(p),
			watchers: make(map[uint64]*watcher),
			ready:    make(chan struct{}),
		}
		s.feeds[p] = f
	}
	id := s.nextID
	s.nextID++
	f.watchers[id] = w
	var initial *delivery
	if f.seen {
		initial = &delivery{w: w, seq: f.seq, v: f.value}
	}
	s.mu.Unlock()

	cancel := s.canceller(p, f, id, w)

	if joined {
		<-f.ready
		if f.err != nil {
			cancel()
			return nil, f.err
		}
	} else if err := s.subscribe(p, f); err != nil {
		cancel()
		return nil, err
	}

	if initial != nil {
		w.deliver(initial.seq, initial.v)
	}
	return cancel, nil
}

// subscribe puts the broker subscription for a new feed in place and
// arms its settle timer.
func (s *MQTT) subscribe(p string, f *feed) error {
	s.subMu.Lock()
	err := s.broker.Subscribe(f.topic, s.broker.QoS(), func(_ string, payload []byte) error {
		return s.receive(p, f, payload)
	})
	s.subMu.Unlock()

	if err != nil {
		f.err = mapBrokerError(err)
		close(f.ready)
		s.mu.Lock()
		if s.feeds[p] == f {
			delete(s.feeds, p)
		}
		s.mu.Unlock()
		return f.err
	}

	s.mu.Lock()
	if !f.seen {
		f.settle = time.AfterFunc(s.settle, func() { s.settleFeed(f) })
	}
	s.mu.Unlock()
	close(f.ready)
	return nil
}

// receive handles one message for feed f.
func (s *MQTT) receive(p string, f *feed, payload []byte) error {
	v, err := RawValue(payload)
	if err != nil {
		// Not ours to fix; the path reads as absent until a valid value
		// is published.
		s.log().Warn("discarding malformed store value", "path", p, "error", err)
		v = Absent()
	}
	s.publish(f, v, false)
	return nil
}

// settleFeed reports a feed that never received a retained message as
// absent.
func (s *MQTT) settleFeed(f *feed) {
	s.publish(f, Absent(), true)
}

// publish records v as the feed's latest value and delivers it. With
// onlyUnseen set it does nothing once the feed has a value.
func (s *MQTT) publish(f *feed, v Value, onlyUnseen bool) {
	s.mu.Lock()
	if onlyUnseen && f.seen {
		s.mu.Unlock()
		return
	}
	f.seen = true
	f.value = v
	f.seq++
	if f.settle != nil {
		f.settle.Stop()
	}
	ds := make([]delivery, 0, len(f.watchers))
	for _, w := range f.watchers {
		ds = append(ds, delivery{w: w, seq: f.seq, v: v})
	}
	s.mu.Unlock()

	deliverAll(ds)
}

func (s *MQTT) canceller(p string, f *feed, id uint64, w *watcher) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			w.stop()

			s.mu.Lock()
			delete(f.watchers, id)
			release := len(f.watchers) == 0 && s.feeds[p] == f
			if release {
				delete(s.feeds, p)
				if f.settle != nil {
					f.settle.Stop()
				}
			}
			s.mu.Unlock()

			if release {
				s.release(p, f)
			}
		})
	}
}

// release drops the broker subscription of a feed with no watchers left,
// unless a new feed for the same path has taken over the topic.
func (s *MQTT) release(p string, f *feed) {
	<-f.ready
	if f.err != nil {
		return
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.mu.Lock()
	_, replaced := s.feeds[p]
	s.mu.Unlock()
	if replaced {
		return
	}
	if err := s.broker.Unsubscribe(f.topic); err != nil {
		s.log().Warn("failed to release store feed", "path", p, "error", err)
	}
}

// Set implements Backend by publishing a retained message. Absent
// publishes an empty payload, which clears the retained value.
func (s *MQTT) Set(ctx context.Context, p string, v Value) error {
	p, err := Clean(p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.broker.PublishRetained(s.topics.State(p), v.Raw())
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("store: set %s: %w", p, mapBrokerError(err))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listeners returns the number of live watchers across all paths.
func (s *MQTT) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.feeds {
		n += len(f.watchers)
	}
	return n
}

// Feeds returns the number of broker subscriptions held.
func (s *MQTT) Feeds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feeds)
}

func mapBrokerError(err error) error {
	if errors.Is(err, mqtt.ErrNotConnected) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
