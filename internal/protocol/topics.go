package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic layout constants for the hub protocol.
//
// All hub-scoped topics follow: hubs/{hub_id}/v{version}/{category}/...
const (
	// TopicPrefix is the root of all hub protocol topics.
	TopicPrefix = "hubs"

	// BroadcastHubID is the reserved hub segment for vault-to-all-hubs commands.
	BroadcastHubID = "broadcast"
)

// Category identifies the top-level routing class of a topic.
type Category string

// Topic categories.
const (
	CategoryTelemetry Category = "telemetry"
	CategoryStatus    Category = "status"
	CategoryCmd       Category = "cmd"
	CategoryAck       Category = "ack"
	CategoryAddon     Category = "addon"
)

// Telemetry subcategories.
const (
	TelemetrySystem  = "system"
	TelemetrySensors = "sensors"
	TelemetryEvents  = "events"
	TelemetryGeneral = "general"
)

// Status subcategories.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Topics provides builders for hub protocol MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := protocol.Topics{}
//	t := topics.TelemetrySensors("hub123", 1)
//	// Returns: "hubs/hub123/v1/telemetry/sensors"
type Topics struct{}

// hubBase returns the common prefix for a hub-scoped topic.
func hubBase(hubID string, version int) string {
	return fmt.Sprintf("%s/%s/v%d", TopicPrefix, hubID, version)
}

// =============================================================================
// Telemetry (Hub -> Vault)
// =============================================================================

// TelemetrySystem returns the system telemetry topic (CPU, RAM, uptime).
//
// Example: hubs/hub123/v1/telemetry/system
func (Topics) TelemetrySystem(hubID string, version int) string {
	return fmt.Sprintf("%s/telemetry/%s", hubBase(hubID, version), TelemetrySystem)
}

// TelemetrySensors returns the sensor telemetry topic.
// Carries basic lists, delta updates, and full metadata snapshots.
//
// Example: hubs/hub123/v1/telemetry/sensors
func (Topics) TelemetrySensors(hubID string, version int) string {
	return fmt.Sprintf("%s/telemetry/%s", hubBase(hubID, version), TelemetrySensors)
}

// TelemetryEvents returns the discrete event telemetry topic.
//
// Example: hubs/hub123/v1/telemetry/events
func (Topics) TelemetryEvents(hubID string, version int) string {
	return fmt.Sprintf("%s/telemetry/%s", hubBase(hubID, version), TelemetryEvents)
}

// TelemetryGeneral returns the catch-all telemetry topic.
//
// Example: hubs/hub123/v1/telemetry/general
func (Topics) TelemetryGeneral(hubID string, version int) string {
	return fmt.Sprintf("%s/telemetry/%s", hubBase(hubID, version), TelemetryGeneral)
}

// =============================================================================
// Presence / Lifecycle (Hub -> Vault)
// =============================================================================

// StatusOnline returns the hub heartbeat topic.
//
// Example: hubs/hub123/v1/status/online
func (Topics) StatusOnline(hubID string, version int) string {
	return fmt.Sprintf("%s/status/%s", hubBase(hubID, version), StatusOnline)
}

// StatusOffline returns the hub offline topic. Hubs should configure this
// as their MQTT Last Will.
//
// Example: hubs/hub123/v1/status/offline
func (Topics) StatusOffline(hubID string, version int) string {
	return fmt.Sprintf("%s/status/%s", hubBase(hubID, version), StatusOffline)
}

// =============================================================================
// Commands (Vault -> Hub)
// =============================================================================

// Cmd returns the topic for a command in a given domain.
//
// Example: Cmd("hub123", 1, "sensors", "poll") -> hubs/hub123/v1/cmd/sensors/poll
func (Topics) Cmd(hubID string, version int, domain, action string) string {
	return fmt.Sprintf("%s/cmd/%s/%s", hubBase(hubID, version), domain, action)
}

// CmdConfigUpdate returns the configuration push topic.
func (t Topics) CmdConfigUpdate(hubID string, version int) string {
	return t.Cmd(hubID, version, "config", "update")
}

// CmdFirmwareUpdate returns the OTA firmware update trigger topic.
func (t Topics) CmdFirmwareUpdate(hubID string, version int) string {
	return t.Cmd(hubID, version, "firmware", "update")
}

// CmdTunnelStart returns the reverse tunnel start topic.
func (t Topics) CmdTunnelStart(hubID string, version int) string {
	return t.Cmd(hubID, version, "tunnel", "start")
}

// CmdTunnelStop returns the reverse tunnel stop topic.
func (t Topics) CmdTunnelStop(hubID string, version int) string {
	return t.Cmd(hubID, version, "tunnel", "stop")
}

// CmdSensorsPoll returns the full-metadata request topic.
func (t Topics) CmdSensorsPoll(hubID string, version int) string {
	return t.Cmd(hubID, version, "sensors", "poll")
}

// CmdSensorsSet returns the sensor configuration override topic.
func (t Topics) CmdSensorsSet(hubID string, version int) string {
	return t.Cmd(hubID, version, "sensors", "set")
}

// =============================================================================
// Acknowledgements (Hub -> Vault)
// =============================================================================

// Ack returns the topic a hub replies on after executing a command.
//
// Example: hubs/hub123/v1/ack/config_update/abc123
func (Topics) Ack(hubID string, version int, commandName, commandID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", hubBase(hubID, version), commandName, commandID)
}

// =============================================================================
// Home Assistant Addon Namespace
// =============================================================================

// AddonTelemetry returns the HA addon telemetry topic.
//
// Example: hubs/hub123/v1/addon/ha/telemetry
func (Topics) AddonTelemetry(hubID string, version int) string {
	return fmt.Sprintf("%s/addon/ha/telemetry", hubBase(hubID, version))
}

// AddonStatus returns the HA addon lifecycle/heartbeat topic.
//
// Example: hubs/hub123/v1/addon/ha/status
func (Topics) AddonStatus(hubID string, version int) string {
	return fmt.Sprintf("%s/addon/ha/status", hubBase(hubID, version))
}

// AddonCmd returns the topic for commands sent to the HA addon.
//
// Example: hubs/hub123/v1/addon/ha/cmd/restart
func (Topics) AddonCmd(hubID string, version int, command string) string {
	return fmt.Sprintf("%s/addon/ha/cmd/%s", hubBase(hubID, version), command)
}

// =============================================================================
// Broadcast (Vault -> All Hubs)
// =============================================================================

// BroadcastCmd returns the topic for vault-wide broadcast commands.
//
// Example: hubs/broadcast/v1/cmd/refresh
func (Topics) BroadcastCmd(version int, command string) string {
	return fmt.Sprintf("%s/%s/v%d/cmd/%s", TopicPrefix, BroadcastHubID, version, command)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllTelemetry returns a pattern matching telemetry from every hub.
//
// Pattern: hubs/+/v1/telemetry/+
func (Topics) AllTelemetry(version int) string {
	return fmt.Sprintf("%s/+/v%d/telemetry/+", TopicPrefix, version)
}

// AllStatus returns a pattern matching status from every hub.
//
// Pattern: hubs/+/v1/status/+
func (Topics) AllStatus(version int) string {
	return fmt.Sprintf("%s/+/v%d/status/+", TopicPrefix, version)
}

// AllAcks returns a pattern matching acknowledgements from every hub.
//
// Pattern: hubs/+/v1/ack/+/+
func (Topics) AllAcks(version int) string {
	return fmt.Sprintf("%s/+/v%d/ack/+/+", TopicPrefix, version)
}

// AllAddon returns a pattern matching HA addon traffic from every hub.
//
// Pattern: hubs/+/v1/addon/ha/#
func (Topics) AllAddon(version int) string {
	return fmt.Sprintf("%s/+/v%d/addon/ha/#", TopicPrefix, version)
}

// AllHubTraffic returns a pattern matching every topic for one hub.
// Use with caution - this receives ALL of the hub's traffic.
//
// Pattern: hubs/hub123/v1/#
func (Topics) AllHubTraffic(hubID string, version int) string {
	return fmt.Sprintf("%s/#", hubBase(hubID, version))
}

// =============================================================================
// Address validation and parsing
// =============================================================================

// Address is the parsed form of a hub protocol topic.
//
// Params hold the category-specific trailing segments, keyed by their
// protocol names (e.g., "subcategory", "domain", "action", "command_name",
// "command_id", "command").
type Address struct {
	HubID     string
	Broadcast bool
	Version   int
	Category  Category
	Params    map[string]string
}

// ValidateAddress checks that a hub ID and version can form a valid topic.
// It is called by senders before publishing.
//
// Returns:
//   - error: *AddressingError describing the invalid field, or nil
func ValidateAddress(hubID string, version int) error {
	if hubID == "" {
		return &AddressingError{Field: "hub_id", Reason: "must not be empty"}
	}
	if strings.ContainsAny(hubID, "/+#") {
		return &AddressingError{Field: "hub_id", Reason: "must not contain topic separators or wildcards"}
	}
	if version < 1 {
		return &AddressingError{Field: "version", Reason: "must be a positive integer"}
	}
	return nil
}

// ParseTopic parses a concrete hub protocol topic into an Address.
//
// The round-trip invariant holds for every builder in this package:
// parsing a built topic recovers the hub ID, version, category, and all
// supplied parameters.
//
// Returns:
//   - Address: Parsed address with category-specific params
//   - error: *AddressingError if the topic does not match the protocol grammar
func ParseTopic(topic string) (Address, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 {
		return Address{}, &AddressingError{Field: "topic", Reason: "too few segments"}
	}
	if parts[0] != TopicPrefix {
		return Address{}, &AddressingError{Field: "prefix", Reason: fmt.Sprintf("expected %q, got %q", TopicPrefix, parts[0])}
	}

	addr := Address{
		HubID:  parts[1],
		Params: make(map[string]string),
	}
	if addr.HubID == "" {
		return Address{}, &AddressingError{Field: "hub_id", Reason: "must not be empty"}
	}
	addr.Broadcast = addr.HubID == BroadcastHubID

	version, err := parseVersion(parts[2])
	if err != nil {
		return Address{}, err
	}
	addr.Version = version

	addr.Category = Category(parts[3])
	rest := parts[4:]

	switch addr.Category {
	case CategoryTelemetry:
		return parseSubcategory(addr, rest, []string{TelemetrySystem, TelemetrySensors, TelemetryEvents, TelemetryGeneral})
	case CategoryStatus:
		return parseSubcategory(addr, rest, []string{StatusOnline, StatusOffline})
	case CategoryCmd:
		return parseCmd(addr, rest)
	case CategoryAck:
		return parseAck(addr, rest)
	case CategoryAddon:
		return parseAddon(addr, rest)
	default:
		return Address{}, &AddressingError{Field: "category", Reason: fmt.Sprintf("unknown category %q", parts[3])}
	}
}

// parseVersion parses a "v{n}" segment into a positive integer.
func parseVersion(segment string) (int, error) {
	if !strings.HasPrefix(segment, "v") {
		return 0, &AddressingError{Field: "version", Reason: fmt.Sprintf("expected v{n}, got %q", segment)}
	}
	version, err := strconv.Atoi(segment[1:])
	if err != nil || version < 1 {
		return 0, &AddressingError{Field: "version", Reason: fmt.Sprintf("must be a positive integer, got %q", segment[1:])}
	}
	return version, nil
}

// parseSubcategory handles telemetry and status topics, which carry a single
// trailing segment drawn from a fixed set.
func parseSubcategory(addr Address, rest, allowed []string) (Address, error) {
	if len(rest) != 1 {
		return Address{}, &AddressingError{Field: "subcategory", Reason: "expected exactly one trailing segment"}
	}
	for _, a := range allowed {
		if rest[0] == a {
			addr.Params["subcategory"] = rest[0]
			return addr, nil
		}
	}
	return Address{}, &AddressingError{Field: "subcategory", Reason: fmt.Sprintf("unknown subcategory %q", rest[0])}
}

// parseCmd handles command topics. Hub-scoped commands carry domain/action;
// broadcast commands carry a single command segment.
func parseCmd(addr Address, rest []string) (Address, error) {
	if addr.Broadcast {
		if len(rest) != 1 || rest[0] == "" {
			return Address{}, &AddressingError{Field: "command", Reason: "broadcast commands require exactly one command segment"}
		}
		addr.Params["command"] = rest[0]
		return addr, nil
	}
	if len(rest) != 2 || rest[0] == "" || rest[1] == "" {
		return Address{}, &AddressingError{Field: "command", Reason: "hub commands require domain and action segments"}
	}
	addr.Params["domain"] = rest[0]
	addr.Params["action"] = rest[1]
	return addr, nil
}

// parseAck handles acknowledgement topics: ack/{command_name}/{command_id}.
func parseAck(addr Address, rest []string) (Address, error) {
	if len(rest) != 2 || rest[0] == "" || rest[1] == "" {
		return Address{}, &AddressingError{Field: "ack", Reason: "acks require command_name and command_id segments"}
	}
	addr.Params["command_name"] = rest[0]
	addr.Params["command_id"] = rest[1]
	return addr, nil
}

// parseAddon handles the HA addon namespace: addon/ha/{telemetry|status|cmd/{command}}.
func parseAddon(addr Address, rest []string) (Address, error) {
	if len(rest) < 2 || rest[0] != "ha" {
		return Address{}, &AddressingError{Field: "addon", Reason: "expected addon/ha/..."}
	}
	switch rest[1] {
	case "telemetry", "status":
		if len(rest) != 2 {
			return Address{}, &AddressingError{Field: "addon", Reason: "unexpected trailing segments"}
		}
		addr.Params["subcategory"] = rest[1]
		return addr, nil
	case "cmd":
		if len(rest) != 3 || rest[2] == "" {
			return Address{}, &AddressingError{Field: "addon", Reason: "addon commands require a command segment"}
		}
		addr.Params["subcategory"] = "cmd"
		addr.Params["command"] = rest[2]
		return addr, nil
	default:
		return Address{}, &AddressingError{Field: "addon", Reason: fmt.Sprintf("unknown addon subcategory %q", rest[1])}
	}
}
