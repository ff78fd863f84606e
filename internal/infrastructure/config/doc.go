// Package config provides configuration loading for Vault Core.
//
// Configuration is layered: hardcoded defaults, then a YAML file, then
// VAULTCORE_* environment variable overrides. The loaded Config is
// validated before use; an invalid configuration fails startup rather
// than degrading at runtime.
//
// Sections map to the subsystems they configure: mqtt (broker connection),
// database (SQLite event history), influxdb (telemetry history),
// reconciliation (per-hub sensor registry tuning), commands (dispatcher
// timeout/retry policy), home_assistant (addon-side discovery), api and
// logging.
package config
