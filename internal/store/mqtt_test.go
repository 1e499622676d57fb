package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/homedash-core/internal/infrastructure/mqtt"
)

// fakeBroker keeps retained messages and delivers them the way a broker
// does: on subscribe and on every publish.
type fakeBroker struct {
	mu          sync.Mutex
	retained    map[string][]byte
	handlers    map[string]mqtt.MessageHandler
	subscribes  int
	unsubscribe int
	publishErr  error
	subErr      error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		retained: make(map[string][]byte),
		handlers: make(map[string]mqtt.MessageHandler),
	}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	b.mu.Lock()
	if b.subErr != nil {
		b.mu.Unlock()
		return b.subErr
	}
	b.subscribes++
	b.handlers[topic] = h
	payload, ok := b.retained[topic]
	b.mu.Unlock()
	if ok {
		_ = h(topic, payload)
	}
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribe++
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBroker) PublishRetained(topic string, payload []byte) error {
	b.mu.Lock()
	if b.publishErr != nil {
		b.mu.Unlock()
		return b.publishErr
	}
	if len(payload) == 0 {
		delete(b.retained, topic)
	} else {
		b.retained[topic] = payload
	}
	h := b.handlers[topic]
	b.mu.Unlock()
	if h != nil {
		_ = h(topic, payload)
	}
	return nil
}

func (b *fakeBroker) QoS() byte { return 1 }

func (b *fakeBroker) counts() (subs, unsubs, live int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribes, b.unsubscribe, len(b.handlers)
}

var storeTopics = mqtt.Topics{Prefix: "homedash"}

func TestMQTT_RetainedInitialValue(t *testing.T) {
	b := newFakeBroker()
	b.retained["homedash/state/Lampu/dapur"] = []byte("true")
	s := newMQTT(b, storeTopics, time.Hour)

	var r recorder
	cancel, err := s.Watch("Lampu/dapur", r.fn)
	require.NoError(t, err)
	defer cancel()

	require.Len(t, r.got(), 1)
	assert.True(t, r.last().Equal(BoolValue(true)))
}

func TestMQTT_SettleWindowReportsAbsent(t *testing.T) {
	b := newFakeBroker()
	s := newMQTT(b, storeTopics, 10*time.Millisecond)

	var r recorder
	cancel, err := s.Watch("dht22/temperature", r.fn)
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool { return len(r.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, r.last().Present())

	// A late value still arrives.
	require.NoError(t, s.Set(context.Background(), "dht22/temperature", IntValue(2650)))
	assert.True(t, r.last().Equal(IntValue(2650)))
}

func TestMQTT_SharedFeed(t *testing.T) {
	b := newFakeBroker()
	b.retained["homedash/state/Kipas/kamar"] = []byte("false")
	s := newMQTT(b, storeTopics, time.Hour)

	var first, second recorder
	cancel1, err := s.Watch("Kipas/kamar", first.fn)
	require.NoError(t, err)
	cancel2, err := s.Watch("Kipas/kamar", second.fn)
	require.NoError(t, err)

	subs, _, _ := b.counts()
	assert.Equal(t, 1, subs, "watchers share one broker subscription")
	assert.Equal(t, 1, s.Feeds())
	assert.Equal(t, 2, s.Listeners())
	assert.True(t, second.last().Equal(BoolValue(false)), "late joiner gets the latest value")

	require.NoError(t, s.Set(context.Background(), "Kipas/kamar", BoolValue(true)))
	assert.True(t, first.last().Equal(BoolValue(true)))
	assert.True(t, second.last().Equal(BoolValue(true)))

	cancel1()
	_, unsubs, _ := b.counts()
	assert.Zero(t, unsubs, "feed stays while a watcher remains")

	cancel2()
	_, unsubs, live := b.counts()
	assert.Equal(t, 1, unsubs)
	assert.Zero(t, live)
	assert.Zero(t, s.Feeds())

	require.NoError(t, s.Set(context.Background(), "Kipas/kamar", BoolValue(false)))
	assert.True(t, second.last().Equal(BoolValue(true)), "no delivery after cancel")
}

func TestMQTT_SetAbsentClearsRetained(t *testing.T) {
	b := newFakeBroker()
	b.retained["homedash/state/Lampu/makan"] = []byte("true")
	s := newMQTT(b, storeTopics, time.Hour)

	require.NoError(t, s.Set(context.Background(), "Lampu/makan", Absent()))
	b.mu.Lock()
	_, ok := b.retained["homedash/state/Lampu/makan"]
	b.mu.Unlock()
	assert.False(t, ok)
}

func TestMQTT_MalformedPayloadIsAbsent(t *testing.T) {
	b := newFakeBroker()
	b.retained["homedash/state/dht22/humidity"] = []byte("{nope")
	s := newMQTT(b, storeTopics, time.Hour)

	var r recorder
	cancel, err := s.Watch("dht22/humidity", r.fn)
	require.NoError(t, err)
	defer cancel()

	require.Len(t, r.got(), 1)
	assert.False(t, r.last().Present())
}

func TestMQTT_NotConnectedIsUnavailable(t *testing.T) {
	b := newFakeBroker()
	b.publishErr = mqtt.ErrNotConnected
	b.subErr = mqtt.ErrNotConnected
	s := newMQTT(b, storeTopics, time.Hour)

	err := s.Set(context.Background(), "Lampu/dapur", BoolValue(true))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, mqtt.ErrNotConnected)

	_, err = s.Watch("Lampu/dapur", func(Value) {})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, s.Feeds(), "failed feed is not kept")
}

func TestMQTT_OtherErrorsPassThrough(t *testing.T) {
	b := newFakeBroker()
	b.publishErr = mqtt.ErrPublishFailed
	s := newMQTT(b, storeTopics, time.Hour)

	err := s.Set(context.Background(), "Lampu/dapur", BoolValue(true))
	assert.ErrorIs(t, err, mqtt.ErrPublishFailed)
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestMQTT_InvalidPath(t *testing.T) {
	s := newMQTT(newFakeBroker(), storeTopics, time.Hour)

	_, err := s.Watch("Lampu/#", func(Value) {})
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.ErrorIs(t, s.Set(context.Background(), "", BoolValue(true)), ErrInvalidPath)
}
