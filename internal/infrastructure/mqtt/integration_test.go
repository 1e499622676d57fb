//go:build integration

package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/homedash-core/internal/infrastructure/config"
)

// Integration tests against a running broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

var integrationTopics = Topics{Prefix: "homedash-test"}

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	return cfg
}

func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	c, err := Connect(integrationConfig(clientID), integrationTopics)
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestIntegration_Connect(t *testing.T) {
	c := connectOrSkip(t, "homedash-int-connect")

	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := c.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	c := connectOrSkip(t, "homedash-int-sub-track")

	topics := []string{
		integrationTopics.State("Lampu/dapur"),
		integrationTopics.State("Lampu/kamar"),
		integrationTopics.State("Kipas/status1"),
	}
	noop := func(string, []byte) error { return nil }

	for _, topic := range topics {
		if err := c.Subscribe(topic, 1, noop); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if c.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", c.SubscriptionCount(), len(topics))
	}

	if err := c.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
}

// A retained value reaches a subscriber that joins after the publish.
func TestIntegration_RetainedRoundtrip(t *testing.T) {
	pub := connectOrSkip(t, "homedash-int-pub")
	sub := connectOrSkip(t, "homedash-int-sub")

	topic := integrationTopics.State("dht22/temperature")
	if err := pub.PublishRetained(topic, []byte("2650")); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}
	t.Cleanup(func() { pub.PublishRetained(topic, nil) })

	received := make(chan string, 1)
	var once sync.Once
	err := sub.Subscribe(topic, 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "2650" {
			t.Errorf("received %q, want 2650", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for retained message")
	}
}

func TestIntegration_OnlineStatus(t *testing.T) {
	watcher := connectOrSkip(t, "homedash-int-watch")
	connectOrSkip(t, "homedash-int-announcer")

	received := make(chan statusPayload, 4)
	err := watcher.Subscribe(integrationTopics.SystemStatus(), 1, func(_ string, p []byte) error {
		var s statusPayload
		if err := json.Unmarshal(p, &s); err != nil {
			return err
		}
		received <- s
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Earlier tests may have left a retained offline status behind.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-received:
			if s.Status == "online" {
				return
			}
		case <-timeout:
			t.Fatal("timeout waiting for online status")
		}
	}
}
