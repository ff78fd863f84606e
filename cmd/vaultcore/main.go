// Vault Core - central controller for remote device hubs.
//
// The vault maintains a live, reconciled view of every hub's sensors
// from MQTT telemetry (basic, delta and full metadata updates), tracks
// commands through to acknowledgement, and exposes the result over a
// REST API for the Home Assistant addon and admin tooling.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/vault-core/migrations"

	"github.com/nerrad567/vault-core/internal/api"
	"github.com/nerrad567/vault-core/internal/coordinator"
	"github.com/nerrad567/vault-core/internal/dispatch"
	"github.com/nerrad567/vault-core/internal/hadiscovery"
	"github.com/nerrad567/vault-core/internal/infrastructure/config"
	"github.com/nerrad567/vault-core/internal/infrastructure/database"
	"github.com/nerrad567/vault-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/vault-core/internal/infrastructure/logging"
	"github.com/nerrad567/vault-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/vault-core/internal/protocol"
	"github.com/nerrad567/vault-core/internal/registry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Vault Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Command dispatcher publishes hub commands and correlates acks
	dispatcher := dispatch.New(mqttClient, cfg.Commands.AckGraceDuration())
	dispatcher.SetLogger(log)
	go dispatcher.Run(ctx, time.Duration(cfg.Commands.SweepInterval)*time.Second)

	// Coordinator owns the per-hub reconciliation workers
	coord := coordinator.New(cfg, dispatcher)
	coord.SetLogger(log)
	coord.SetEventStore(registry.NewSQLiteEventStore(db.DB))
	if influxClient != nil {
		coord.SetTelemetryWriter(influxClient)
	}
	coord.Start(ctx)
	defer func() {
		log.Info("stopping coordinator")
		coord.Stop()
	}()
	// Route hub traffic into the coordinator
	if err := subscribeHubTopics(mqttClient, coord, coord.Version(), cfg.MQTT.QoS); err != nil {
		return fmt.Errorf("subscribing to hub topics: %w", err)
	}
	log.Info("hub topic subscriptions established", "count", mqttClient.SubscriptionCount())

	// Probe Home Assistant (optional; the addon works without it until configured)
	if cfg.HomeAssistant.RESTURL != "" {
		if probeErr := probeHomeAssistant(ctx, cfg.HomeAssistant, log); probeErr != nil {
			log.Warn("Home Assistant discovery failed; addon features degraded", "error", probeErr)
		}
	} else {
		log.Info("Home Assistant discovery not configured")
	}

	// Start the REST API
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		Commands:    cfg.Commands,
		Logger:      log,
		Coordinator: coord,
		Dispatcher:  dispatcher,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Coordinator
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Vault Core stopped")
	return nil
}

// subscribeHubTopics wires the wildcard hub subscriptions into the
// coordinator. Acks and addon traffic ride separate filters so the
// broker does the fan-out, not us.
func subscribeHubTopics(client *mqtt.Client, coord *coordinator.Coordinator, version, qos int) error {
	topics := protocol.Topics{}

	subscriptions := []string{
		topics.AllTelemetry(version),
		topics.AllStatus(version),
		topics.AllAcks(version),
		topics.AllAddon(version),
	}

	for _, topic := range subscriptions {
		// #nosec G115 -- QoS is validated to 0..2 by the MQTT client
		if err := client.Subscribe(topic, byte(qos), coord.HandleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

// probeHomeAssistant runs a one-shot discovery against the configured
// Home Assistant instance and logs what it found.
func probeHomeAssistant(ctx context.Context, cfg config.HomeAssistantConfig, log *logging.Logger) error {
	client, err := hadiscovery.New(cfg)
	if err != nil {
		return err
	}

	result, err := client.DiscoverAll(ctx, false)
	if err != nil {
		return err
	}

	log.Info("Home Assistant discovered",
		"base_url", result.REST.BaseURL,
		"services", len(result.REST.Services),
		"states", len(result.REST.States),
		"ha_version", result.Websocket.Config["version"],
	)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VAULTCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VAULTCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
