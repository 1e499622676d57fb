// Package metrics exports homedash's operational and device metrics to
// Prometheus.
//
// Collectors live on a private registry served by Handler at /metrics:
//
//	homedash_store_writes_total{outcome="access_denied"} 1
//	homedash_environment{sensor="dht22",quantity="temperature"} 26.5
//	homedash_switch_state{kind="light",id="dapur"} 1
package metrics
