// Package influxdb provides time-series storage for hub telemetry.
//
// It wraps the official influxdb-client-go v2 library with the patterns
// used across the vault for connection management and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Hub system health (CPU, RAM, uptime, temperature)
//   - Sensor-originated events (motion, threshold crossings, errors)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSystemTelemetry("hub-garage", telemetry)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes, so these
// methods are safe to call from the coordinator's hub workers.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via
// the SetOnError callback. Connection and health check errors are
// returned directly.
package influxdb
