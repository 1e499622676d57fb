// Package telemetry records device state as it changes.
//
// The Recorder subscribes to every path in the device catalog through the
// realtime bridge, exactly like a control surface does, and forwards each
// confirmed value to its sinks: the InfluxDB client for history and the
// Prometheus metrics for current gauges. Values that do not project
// (absent or wrongly typed) are not recorded; sinks holding current state
// drop the series instead.
package telemetry
