package influxdb

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/vault-core/internal/infrastructure/config"
	"github.com/nerrad567/vault-core/internal/protocol"
)

func TestConnectDisabled(t *testing.T) {
	cfg := config.InfluxDBConfig{
		Enabled: false,
		URL:     "http://127.0.0.1:8086",
	}

	_, err := Connect(cfg)
	if err == nil {
		t.Fatal("Connect() should return error when disabled")
	}
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestWritesOnDisconnectedClientAreNoOps(t *testing.T) {
	// A zero-value client must drop writes silently rather than panic;
	// the coordinator calls these without checking connection state.
	c := &Client{}

	c.WriteSystemTelemetry("hub-a", protocol.SystemTelemetry{CPUPercent: 10})
	c.WriteSensorEvent("hub-a", protocol.EventTelemetry{SensorID: "s1"})
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1.0})
	c.Flush()

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestUnixTime(t *testing.T) {
	got := unixTime(1700000000.5)
	want := time.Unix(1700000000, 500000000)
	// Float conversion can lose a few nanoseconds.
	if diff := got.Sub(want); diff < -time.Microsecond || diff > time.Microsecond {
		t.Errorf("unixTime() = %v, want %v", got, want)
	}

	// Zero falls back to now rather than the epoch.
	if unixTime(0).Year() < 2020 {
		t.Error("unixTime(0) should fall back to current time")
	}
}

func TestNumericValue(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   float64
		wantOK bool
	}{
		{name: "float64", value: 21.5, want: 21.5, wantOK: true},
		{name: "int", value: 3, want: 3, wantOK: true},
		{name: "string", value: "open", wantOK: false},
		{name: "nil", value: nil, wantOK: false},
		{name: "bool", value: true, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := numericValue(tt.value)
			if ok != tt.wantOK {
				t.Fatalf("numericValue(%v) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("numericValue(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
