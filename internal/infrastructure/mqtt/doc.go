// Package mqtt provides MQTT client connectivity for the vault.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for vault offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The vault talks to its hub fleet exclusively over MQTT. The broker
// decouples the vault from individual hubs: hubs publish telemetry, status,
// and command acknowledgements; the vault publishes commands and its own
// presence on vault/status.
//
//	Vault ↔ MQTT Broker ↔ Hubs (and HA addons)
//
// Topic construction and parsing live in internal/protocol; this package
// deliberately knows nothing about the hub topic grammar beyond the vault's
// own status topic.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := protocol.Topics{}
//	err = client.Subscribe(topics.AllTelemetry(1), 1,
//	    func(topic string, payload []byte) error {
//	        return router.Route(topic, payload)
//	    })
package mqtt
