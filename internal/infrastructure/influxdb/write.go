package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementEnvironment = "environment"
	measurementSwitch      = "switch_state"
	measurementFanSpeed    = "fan_speed"
)

// WriteReading records a sensor reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - sensor: Sensor name (e.g., "dht22")
//   - quantity: What was measured (e.g., "temperature", "humidity")
//   - value: The reading
//
// Example:
//
//	client.WriteReading("dht22", "temperature", 26.5)
func (c *Client) WriteReading(sensor, quantity string, value float64) {
	c.writePoint(readingPoint(sensor, quantity, value, time.Now()))
}

// WriteSwitch records the state of a light or fan power switch.
//
// Parameters:
//   - kind: "light" or "fan"
//   - id: Room or fan ID
//   - on: Switch state
func (c *Client) WriteSwitch(kind, id string, on bool) {
	c.writePoint(switchPoint(kind, id, on, time.Now()))
}

// WriteFanSpeed records a confirmed fan speed in percent.
func (c *Client) WriteFanSpeed(fan string, percent int) {
	c.writePoint(fanSpeedPoint(fan, percent, time.Now()))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func readingPoint(sensor, quantity string, value float64, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementEnvironment,
		map[string]string{"sensor": sensor, "quantity": quantity},
		map[string]any{"value": value},
		ts,
	)
}

func switchPoint(kind, id string, on bool, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementSwitch,
		map[string]string{"kind": kind, "id": id},
		map[string]any{"on": on},
		ts,
	)
}

func fanSpeedPoint(fan string, percent int, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementFanSpeed,
		map[string]string{"fan": fan},
		map[string]any{"percent": int64(percent)},
		ts,
	)
}
