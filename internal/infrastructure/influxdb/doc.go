// Package influxdb records dashboard telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks. The
// telemetry recorder feeds it every confirmed device state. Each point
// carries the site ID as a default tag:
//
//	environment,sensor=dht22,quantity=temperature,site=home-001 value=26.5
//	switch_state,kind=light,id=dapur,site=home-001 on=true
//	fan_speed,fan=kamar,site=home-001 percent=50i
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteReading("dht22", "temperature", 26.5)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered to the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
