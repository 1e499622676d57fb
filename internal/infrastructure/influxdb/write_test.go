package influxdb

import (
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/homedash-core/internal/infrastructure/config"
)

var testTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestPoints_LineProtocol(t *testing.T) {
	tests := []struct {
		name  string
		point *write.Point
		want  string
	}{
		{
			name:  "reading",
			point: readingPoint("dht22", "temperature", 26.5, testTime),
			want:  "environment,quantity=temperature,sensor=dht22 value=26.5 1790856000000000000",
		},
		{
			name:  "switch",
			point: switchPoint("light", "dapur", true, testTime),
			want:  "switch_state,id=dapur,kind=light on=true 1790856000000000000",
		},
		{
			name:  "fan speed",
			point: fanSpeedPoint("kamar", 50, testTime),
			want:  "fan_speed,fan=kamar percent=50i 1790856000000000000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.TrimSpace(write.PointToLineProtocol(tt.point, time.Nanosecond))
			if got != tt.want {
				t.Errorf("line protocol = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientOptions_Defaults(t *testing.T) {
	opts := clientOptions(config.InfluxDBConfig{BatchSize: -1, FlushInterval: 0}, "")
	if opts.BatchSize() != defaultBatchSize {
		t.Errorf("BatchSize() = %d, want %d", opts.BatchSize(), defaultBatchSize)
	}
	if opts.FlushInterval() != defaultFlushInterval*millisecondsPerSecond {
		t.Errorf("FlushInterval() = %d", opts.FlushInterval())
	}

	if tags := opts.WriteOptions().DefaultTags(); len(tags) != 0 {
		t.Errorf("DefaultTags() = %v, want none without a site", tags)
	}

	opts = clientOptions(config.InfluxDBConfig{BatchSize: 5, FlushInterval: 2}, "home-001")
	if opts.BatchSize() != 5 || opts.FlushInterval() != 2000 {
		t.Errorf("options = (%d, %d), want (5, 2000)", opts.BatchSize(), opts.FlushInterval())
	}
	if got := opts.WriteOptions().DefaultTags()["site"]; got != "home-001" {
		t.Errorf("site tag = %q, want %q", got, "home-001")
	}
}

func TestWrite_NotConnectedIsNoop(t *testing.T) {
	c := &Client{}
	// Must not touch the nil write API.
	c.WriteReading("dht22", "temperature", 20)
	c.WriteSwitch("fan", "kamar", false)
	c.WriteFanSpeed("kamar", 10)
	c.Flush()
}
