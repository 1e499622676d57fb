// Package mqtt provides the broker connection behind the realtime store.
//
// homedash keeps device state as retained MQTT messages: the last value
// written to a path stays on the broker and is handed to every new
// subscriber. Hardware (lamp relays, the fan controller, the DHT22
// sensor node) publishes and subscribes to the same topics.
//
//	<prefix>/state/Lampu/dapur        true
//	<prefix>/state/Kipas/kecepatankamar 90
//	<prefix>/state/dht22/temperature  27.4
//	<prefix>/system/status            {"status":"online",...}
//
// This package manages:
//   - Connection with auto-reconnect and exponential backoff
//   - Subscriptions restored after every reconnect
//   - Last Will and Testament on the system status topic
//   - Panic recovery in message handlers
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) whenever the broker is not on localhost
//   - The broker ACL should let only this service and the device nodes
//     write under <prefix>/state; write rules in the store are enforced
//     for dashboard users only
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Prefix: cfg.Store.TopicPrefix})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.State("Lampu/dapur"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("%s = %s", topic, payload)
//	        return nil
//	    })
//
// Tests needing a broker at 127.0.0.1:1883 are behind the integration
// build tag:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...
package mqtt
