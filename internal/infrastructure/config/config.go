package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Vault Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Vault          VaultConfig          `yaml:"vault"`
	MQTT           MQTTConfig           `yaml:"mqtt"`
	Database       DatabaseConfig       `yaml:"database"`
	InfluxDB       InfluxDBConfig       `yaml:"influxdb"`
	API            APIConfig            `yaml:"api"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Commands       CommandsConfig       `yaml:"commands"`
	HomeAssistant  HomeAssistantConfig  `yaml:"home_assistant"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// VaultConfig contains identity information for this vault instance.
type VaultConfig struct {
	ID string `yaml:"id"`

	// ProtocolVersion is the hub protocol version this vault speaks.
	// Topics partition by version; registries never mix versions.
	ProtocolVersion int `yaml:"protocol_version"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// ReconciliationConfig tunes the per-hub sensor reconciliation engine.
type ReconciliationConfig struct {
	// StalenessThreshold is how long a sensor may go without a basic or
	// delta update before it is flagged stale (seconds).
	StalenessThreshold int `yaml:"staleness_threshold"`

	// ForceRefreshThreshold is the longer window after which stale sensors
	// trigger a full-metadata poll of the hub (seconds).
	ForceRefreshThreshold int `yaml:"force_refresh_threshold"`

	// SweepInterval is how often the staleness sweep runs (seconds).
	SweepInterval int `yaml:"sweep_interval"`

	// QueueSize bounds each hub worker's inbound message queue.
	QueueSize int `yaml:"queue_size"`

	// MaxSensorsPerHub caps registry growth from full-metadata synthesis.
	// The basic list remains authoritative regardless of the cap.
	MaxSensorsPerHub int `yaml:"max_sensors_per_hub"`

	// ResyncBackoffInitial and ResyncBackoffMax bound the exponential
	// backoff between repeated re-sync requests to the same hub (seconds).
	ResyncBackoffInitial int `yaml:"resync_backoff_initial"`
	ResyncBackoffMax     int `yaml:"resync_backoff_max"`

	// EventRetentionDays is how long hub event history is kept before the
	// sweep prunes it.
	EventRetentionDays int `yaml:"event_retention_days"`
}

// CommandsConfig tunes the command dispatcher.
type CommandsConfig struct {
	// DefaultTimeout is how long to wait for an ack before retrying (seconds).
	DefaultTimeout int `yaml:"default_timeout"`

	// MaxRetries is the default re-dispatch count on ack silence.
	MaxRetries int `yaml:"max_retries"`

	// AckGrace is how long terminal commands are retained for
	// duplicate-ack detection (seconds).
	AckGrace int `yaml:"ack_grace"`

	// SweepInterval is how often the timeout sweep runs (seconds).
	SweepInterval int `yaml:"sweep_interval"`
}

// HomeAssistantConfig contains Home Assistant discovery settings (addon side).
type HomeAssistantConfig struct {
	RESTURL       string `yaml:"rest_url"`
	Token         string `yaml:"token"`
	WebsocketPath string `yaml:"websocket_path"`
	Timeout       int    `yaml:"timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VAULTCORE_SECTION_KEY
// For example: VAULTCORE_DATABASE_PATH, VAULTCORE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Vault: VaultConfig{
			ID:              "vault-001",
			ProtocolVersion: 1,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "vault-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/vaultcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Reconciliation: ReconciliationConfig{
			StalenessThreshold:    300,
			ForceRefreshThreshold: 900,
			SweepInterval:         60,
			QueueSize:             256,
			MaxSensorsPerHub:      5000,
			ResyncBackoffInitial:  5,
			ResyncBackoffMax:      300,
			EventRetentionDays:    30,
		},
		Commands: CommandsConfig{
			DefaultTimeout: 30,
			MaxRetries:     2,
			AckGrace:       60,
			SweepInterval:  5,
		},
		HomeAssistant: HomeAssistantConfig{
			WebsocketPath: "api/websocket",
			Timeout:       30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VAULTCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Vault identity
	if v := os.Getenv("VAULTCORE_VAULT_ID"); v != "" {
		cfg.Vault.ID = v
	}

	// Database
	if v := os.Getenv("VAULTCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("VAULTCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VAULTCORE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("VAULTCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VAULTCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("VAULTCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("VAULTCORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Home Assistant (addon deployments inject these)
	if v := os.Getenv("VAULTCORE_HA_REST_URL"); v != "" {
		cfg.HomeAssistant.RESTURL = v
	}
	if v := os.Getenv("VAULTCORE_HA_TOKEN"); v != "" {
		cfg.HomeAssistant.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Vault validation
	if c.Vault.ID == "" {
		errs = append(errs, "vault.id is required")
	}
	if c.Vault.ProtocolVersion < 1 {
		errs = append(errs, "vault.protocol_version must be a positive integer")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Reconciliation validation
	if c.Reconciliation.StalenessThreshold <= 0 {
		errs = append(errs, "reconciliation.staleness_threshold must be positive")
	}
	if c.Reconciliation.ForceRefreshThreshold < c.Reconciliation.StalenessThreshold {
		errs = append(errs, "reconciliation.force_refresh_threshold must be >= staleness_threshold")
	}
	if c.Reconciliation.QueueSize <= 0 {
		errs = append(errs, "reconciliation.queue_size must be positive")
	}
	if c.Reconciliation.MaxSensorsPerHub <= 0 {
		errs = append(errs, "reconciliation.max_sensors_per_hub must be positive")
	}
	if c.Reconciliation.EventRetentionDays <= 0 {
		errs = append(errs, "reconciliation.event_retention_days must be positive")
	}

	// Commands validation
	if c.Commands.DefaultTimeout <= 0 {
		errs = append(errs, "commands.default_timeout must be positive")
	}
	if c.Commands.MaxRetries < 0 {
		errs = append(errs, "commands.max_retries must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// StalenessDuration returns the staleness threshold as a Duration.
func (c *ReconciliationConfig) StalenessDuration() time.Duration {
	return time.Duration(c.StalenessThreshold) * time.Second
}

// ForceRefreshDuration returns the force-refresh threshold as a Duration.
func (c *ReconciliationConfig) ForceRefreshDuration() time.Duration {
	return time.Duration(c.ForceRefreshThreshold) * time.Second
}

// SweepDuration returns the staleness sweep interval as a Duration.
func (c *ReconciliationConfig) SweepDuration() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

// BackoffInitial returns the initial re-sync backoff as a Duration.
func (c *ReconciliationConfig) BackoffInitial() time.Duration {
	return time.Duration(c.ResyncBackoffInitial) * time.Second
}

// BackoffMax returns the maximum re-sync backoff as a Duration.
func (c *ReconciliationConfig) BackoffMax() time.Duration {
	return time.Duration(c.ResyncBackoffMax) * time.Second
}

// EventRetention returns the hub event retention window as a Duration.
func (c *ReconciliationConfig) EventRetention() time.Duration {
	return time.Duration(c.EventRetentionDays) * 24 * time.Hour
}

// DefaultTimeoutDuration returns the default ack timeout as a Duration.
func (c *CommandsConfig) DefaultTimeoutDuration() time.Duration {
	return time.Duration(c.DefaultTimeout) * time.Second
}

// AckGraceDuration returns the terminal-command grace window as a Duration.
func (c *CommandsConfig) AckGraceDuration() time.Duration {
	return time.Duration(c.AckGrace) * time.Second
}

// SweepDuration returns the command sweep interval as a Duration.
func (c *CommandsConfig) SweepDuration() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
