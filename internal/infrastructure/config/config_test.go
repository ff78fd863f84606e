package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeTempConfig(t, "vault:\n  id: vault-test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Vault.ID != "vault-test" {
		t.Errorf("Vault.ID = %q, want vault-test", cfg.Vault.ID)
	}
	if cfg.Vault.ProtocolVersion != 1 {
		t.Errorf("ProtocolVersion = %d, want 1", cfg.Vault.ProtocolVersion)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Reconciliation.MaxSensorsPerHub != 5000 {
		t.Errorf("MaxSensorsPerHub = %d, want default 5000", cfg.Reconciliation.MaxSensorsPerHub)
	}
	if cfg.Commands.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want default 2", cfg.Commands.MaxRetries)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
vault:
  id: vault-two
  protocol_version: 3
mqtt:
  broker:
    host: broker.local
    port: 8883
    tls: true
reconciliation:
  staleness_threshold: 120
  force_refresh_threshold: 600
commands:
  default_timeout: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Vault.ProtocolVersion != 3 {
		t.Errorf("ProtocolVersion = %d, want 3", cfg.Vault.ProtocolVersion)
	}
	if cfg.MQTT.Broker.Host != "broker.local" || !cfg.MQTT.Broker.TLS {
		t.Errorf("broker not overridden: %+v", cfg.MQTT.Broker)
	}
	if got := cfg.Reconciliation.StalenessDuration(); got != 120*time.Second {
		t.Errorf("StalenessDuration = %v, want 120s", got)
	}
	if got := cfg.Commands.DefaultTimeoutDuration(); got != 10*time.Second {
		t.Errorf("DefaultTimeoutDuration = %v, want 10s", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "vault:\n  id: vault-env\n")

	t.Setenv("VAULTCORE_MQTT_HOST", "env-broker")
	t.Setenv("VAULTCORE_MQTT_PORT", "2883")
	t.Setenv("VAULTCORE_DATABASE_PATH", "/tmp/env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("env override not applied: host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 2883 {
		t.Errorf("env override not applied: port = %d", cfg.MQTT.Broker.Port)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("env override not applied: db path = %q", cfg.Database.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "empty vault id",
			mutate:  func(c *Config) { c.Vault.ID = "" },
			wantMsg: "vault.id",
		},
		{
			name:    "zero protocol version",
			mutate:  func(c *Config) { c.Vault.ProtocolVersion = 0 },
			wantMsg: "protocol_version",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantMsg: "mqtt.qos",
		},
		{
			name:    "force refresh below staleness",
			mutate:  func(c *Config) { c.Reconciliation.ForceRefreshThreshold = 1 },
			wantMsg: "force_refresh_threshold",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Commands.MaxRetries = -1 },
			wantMsg: "max_retries",
		},
		{
			name:    "zero event retention",
			mutate:  func(c *Config) { c.Reconciliation.EventRetentionDays = 0 },
			wantMsg: "event_retention_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() = nil error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeTempConfig(t, "vault: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() = nil error for malformed YAML")
	}
}
