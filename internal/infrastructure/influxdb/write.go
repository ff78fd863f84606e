package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/vault-core/internal/protocol"
)

// WriteSystemTelemetry records a hub's system health report.
//
// Points are tagged by hub_id and timestamped with the hub's own report
// time, so delayed or replayed telemetry lands at the correct position
// in the series. The write is non-blocking; data is batched and sent
// asynchronously.
//
// Parameters:
//   - hubID: The reporting hub
//   - t: Decoded system telemetry payload
func (c *Client) WriteSystemTelemetry(hubID string, t protocol.SystemTelemetry) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"cpu_percent":    t.CPUPercent,
		"ram_percent":    t.RAMPercent,
		"uptime_seconds": t.UptimeSeconds,
	}
	if t.Temperature != nil {
		fields["temperature"] = *t.Temperature
	}

	point := write.NewPoint(
		"hub_system",
		map[string]string{
			"hub_id": hubID,
		},
		fields,
		unixTime(t.Timestamp),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSensorEvent records a sensor-originated event from a hub.
//
// Numeric event values are stored as a value field; non-numeric values
// are recorded as an occurrence marker only, since InfluxDB fields must
// be typed consistently within a series.
//
// Parameters:
//   - hubID: The reporting hub
//   - e: Decoded event telemetry payload
func (c *Client) WriteSensorEvent(hubID string, e protocol.EventTelemetry) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"occurred": true,
	}
	if v, ok := numericValue(e.Value); ok {
		fields["value"] = v
	}

	point := write.NewPoint(
		"sensor_events",
		map[string]string{
			"hub_id":     hubID,
			"sensor_id":  e.SensorID,
			"event_type": string(e.EventType),
		},
		fields,
		unixTime(e.Timestamp),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// unixTime converts a float unix-seconds timestamp to time.Time.
// A zero timestamp falls back to the current time.
func unixTime(ts float64) time.Time {
	if ts <= 0 {
		return time.Now()
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// numericValue coerces JSON-decoded event values to float64.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
