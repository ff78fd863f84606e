package protocol

import (
	"encoding/json"
	"fmt"
)

// AckStatus is the outcome a hub reports after executing a command.
type AckStatus string

// Ack statuses.
const (
	AckOK    AckStatus = "ok"
	AckError AckStatus = "error"
)

// EventType classifies discrete sensor events.
type EventType string

// Event types.
const (
	EventDoor   EventType = "door"
	EventMotion EventType = "motion"
	EventButton EventType = "button"
	EventPower  EventType = "power"
	EventOther  EventType = "other"
)

// Command names used on hub-scoped command topics (domain.action form).
const (
	CmdNameConfigUpdate   = "config.update"
	CmdNameFirmwareUpdate = "firmware.update"
	CmdNameTunnelStart    = "tunnel.start"
	CmdNameTunnelStop     = "tunnel.stop"
	CmdNameSensorsPoll    = "sensors.poll"
	CmdNameSensorsSet     = "sensors.set"
	CmdNameAddonHA        = "addon.ha"
)

// UpdateKind classifies a sensor telemetry payload for the reconciler.
type UpdateKind string

// Update kinds.
const (
	// UpdateBasic is an authoritative enumeration of currently-known
	// sensors, carrying minimal per-sensor fields.
	UpdateBasic UpdateKind = "basic"

	// UpdateDelta carries field changes for sensors the hub believes the
	// vault already knows about.
	UpdateDelta UpdateKind = "delta"

	// UpdateFull is a complete metadata snapshot for the sensors it names.
	UpdateFull UpdateKind = "full"
)

// SensorUpdate is one sensor's entry inside a telemetry payload.
type SensorUpdate struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// SensorsTelemetry is the payload published on the sensors telemetry topic.
//
// Partial=false marks a full metadata snapshot. Partial=true with Delta=true
// marks a delta update; Partial=true without Delta marks a basic enumeration.
type SensorsTelemetry struct {
	Partial   bool           `json:"partial"`
	Delta     bool           `json:"delta,omitempty"`
	Timestamp float64        `json:"timestamp"`
	Sensors   []SensorUpdate `json:"sensors"`
}

// Kind classifies the payload for the reconciler.
func (t SensorsTelemetry) Kind() UpdateKind {
	if !t.Partial {
		return UpdateFull
	}
	if t.Delta {
		return UpdateDelta
	}
	return UpdateBasic
}

// SystemTelemetry is the payload published on the system telemetry topic.
type SystemTelemetry struct {
	CPUPercent    float64  `json:"cpu_percent"`
	RAMPercent    float64  `json:"ram_percent"`
	UptimeSeconds float64  `json:"uptime_seconds"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Timestamp     float64  `json:"timestamp"`
}

// EventTelemetry is the payload published on the events telemetry topic.
type EventTelemetry struct {
	SensorID  string    `json:"sensor_id"`
	EventType EventType `json:"event_type"`
	Value     any       `json:"value,omitempty"`
	Timestamp float64   `json:"timestamp"`
}

// GeneralTelemetry is the payload published on the general telemetry topic.
// It carries free-form hub diagnostics the vault stores but does not
// interpret.
type GeneralTelemetry struct {
	Data map[string]any `json:"data"`
}

// HubStatus is the payload published on status/online and status/offline.
type HubStatus struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

// CommandAck is the payload a hub publishes on its ack topic after
// executing (or failing to execute) a command.
type CommandAck struct {
	CommandID string    `json:"command_id"`
	Status    AckStatus `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp float64   `json:"timestamp,omitempty"`
}

// AddonTelemetry is the payload the HA addon publishes on its telemetry
// topic: a snapshot of addon-side state.
type AddonTelemetry struct {
	State     map[string]any `json:"state"`
	Timestamp float64        `json:"timestamp"`
}

// AddonStatus is the payload the HA addon publishes on its status topic.
type AddonStatus struct {
	Status    string  `json:"status"`
	Version   string  `json:"version,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// =============================================================================
// Decoding with validation
// =============================================================================

// Validators decode raw MQTT payloads into typed structs, rejecting
// payloads with missing required fields or mistyped values. Pointer
// intermediates distinguish "absent" from zero values so that a missing
// required field is reported precisely.

// DecodeSensorsTelemetry decodes and validates a sensors telemetry payload.
//
// Returns:
//   - SensorsTelemetry: Validated payload
//   - error: *SchemaViolation naming the offending field
func DecodeSensorsTelemetry(raw []byte) (SensorsTelemetry, error) {
	var in struct {
		Partial   *bool           `json:"partial"`
		Delta     bool            `json:"delta"`
		Timestamp *float64        `json:"timestamp"`
		Sensors   *[]SensorUpdate `json:"sensors"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return SensorsTelemetry{}, &SchemaViolation{Field: "payload", Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if in.Partial == nil {
		return SensorsTelemetry{}, &SchemaViolation{Field: "partial", Reason: "required"}
	}
	if in.Timestamp == nil {
		return SensorsTelemetry{}, &SchemaViolation{Field: "timestamp", Reason: "required"}
	}
	if *in.Timestamp <= 0 {
		return SensorsTelemetry{}, &SchemaViolation{Field: "timestamp", Reason: "must be positive"}
	}
	if in.Sensors == nil {
		return SensorsTelemetry{}, &SchemaViolation{Field: "sensors", Reason: "required"}
	}
	for i, s := range *in.Sensors {
		if s.ID == "" {
			return SensorsTelemetry{}, &SchemaViolation{Field: fmt.Sprintf("sensors[%d].id", i), Reason: "required"}
		}
	}
	return SensorsTelemetry{
		Partial:   *in.Partial,
		Delta:     in.Delta,
		Timestamp: *in.Timestamp,
		Sensors:   *in.Sensors,
	}, nil
}

// DecodeSystemTelemetry decodes and validates a system telemetry payload.
func DecodeSystemTelemetry(raw []byte) (SystemTelemetry, error) {
	var in struct {
		CPUPercent    *float64 `json:"cpu_percent"`
		RAMPercent    *float64 `json:"ram_percent"`
		UptimeSeconds *float64 `json:"uptime_seconds"`
		Temperature   *float64 `json:"temperature"`
		Timestamp     *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return SystemTelemetry{}, &SchemaViolation{Field: "payload", Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if in.CPUPercent == nil {
		return SystemTelemetry{}, &SchemaViolation{Field: "cpu_percent", Reason: "required"}
	}
	if in.RAMPercent == nil {
		return SystemTelemetry{}, &SchemaViolation{Field: "ram_percent", Reason: "required"}
	}
	if in.UptimeSeconds == nil {
		return SystemTelemetry{}, &SchemaViolation{Field: "uptime_seconds", Reason: "required"}
	}
	if in.Timestamp == nil {
		return SystemTelemetry{}, &SchemaViolation{Field: "timestamp", Reason: "required"}
	}
	return SystemTelemetry{
		CPUPercent:    *in.CPUPercent,
		RAMPercent:    *in.RAMPercent,
		UptimeSeconds: *in.UptimeSeconds,
		Temperature:   in.Temperature,
		Timestamp:     *in.Timestamp,
	}, nil
}

// DecodeEventTelemetry decodes and validates an event telemetry payload.
// Unfamiliar event type strings are accepted; only structural problems
// are rejected.
func DecodeEventTelemetry(raw []byte) (EventTelemetry, error) {
	var in struct {
		SensorID  string   `json:"sensor_id"`
		EventType string   `json:"event_type"`
		Value     any      `json:"value"`
		Timestamp *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return EventTelemetry{}, &SchemaViolation{Field: "payload", Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if in.SensorID == "" {
		return EventTelemetry{}, &SchemaViolation{Field: "sensor_id", Reason: "required"}
	}
	if in.EventType == "" {
		return EventTelemetry{}, &SchemaViolation{Field: "event_type", Reason: "required"}
	}
	if in.Timestamp == nil {
		return EventTelemetry{}, &SchemaViolation{Field: "timestamp", Reason: "required"}
	}
	return EventTelemetry{
		SensorID:  in.SensorID,
		EventType: EventType(in.EventType),
		Value:     in.Value,
		Timestamp: *in.Timestamp,
	}, nil
}

// DecodeGeneralTelemetry decodes a general telemetry payload. Only JSON
// validity is enforced; the data map is free-form and may be absent.
func DecodeGeneralTelemetry(raw []byte) (GeneralTelemetry, error) {
	var in GeneralTelemetry
	if err := json.Unmarshal(raw, &in); err != nil {
		return GeneralTelemetry{}, &SchemaViolation{Field: "payload", Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if in.Data == nil {
		in.Data = map[string]any{}
	}
	return in, nil
}

// DecodeHubStatus decodes and validates a hub status payload.
func DecodeHubStatus(raw []byte) (HubStatus, error) {
	var in struct {
		Status    string   `json:"status"`
		Timestamp *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return HubStatus{}, &SchemaViolation{Field: "payload", Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if in.Status != StatusOnline && in.Status != StatusOffline {
		return HubStatus{}, &SchemaViolation{Field: "status", Reason: fmt.Sprintf("must be %q or %q", StatusOnline, StatusOffline)}
	}
	if in.Timestamp == nil {
		return HubStatus{}, &SchemaViolation{Field: "timestamp", Reason: "required"}
	}
	return HubStatus{Status: in.Status, Timestamp: *in.Timestamp}, nil
}

// DecodeCommandAck decodes and validates a command acknowledgement payload.
func DecodeCommandAck(raw []byte) (CommandAck, error) {
	var in struct {
		CommandID string   `json:"command_id"`
		Status    string   `json:"status"`
		Detail    string   `json:"detail"`
		Timestamp *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return CommandAck{}, &SchemaViolation{Field: "payload", Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if in.CommandID == "" {
		return CommandAck{}, &SchemaViolation{Field: "command_id", Reason: "required"}
	}
	status := AckStatus(in.Status)
	if status != AckOK && status != AckError {
		return CommandAck{}, &SchemaViolation{Field: "status", Reason: fmt.Sprintf("must be %q or %q", AckOK, AckError)}
	}
	ack := CommandAck{CommandID: in.CommandID, Status: status, Detail: in.Detail}
	if in.Timestamp != nil {
		ack.Timestamp = *in.Timestamp
	}
	return ack, nil
}

// DecodeAddonTelemetry decodes and validates an HA addon telemetry payload.
func DecodeAddonTelemetry(raw []byte) (AddonTelemetry, error) {
	var in struct {
		State     map[string]any `json:"state"`
		Timestamp *float64       `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return AddonTelemetry{}, &SchemaViolation{Field: "payload", Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if in.Timestamp == nil {
		return AddonTelemetry{}, &SchemaViolation{Field: "timestamp", Reason: "required"}
	}
	if in.State == nil {
		in.State = map[string]any{}
	}
	return AddonTelemetry{State: in.State, Timestamp: *in.Timestamp}, nil
}

// DecodeAddonStatus decodes and validates an HA addon status payload.
func DecodeAddonStatus(raw []byte) (AddonStatus, error) {
	var in struct {
		Status    string   `json:"status"`
		Version   string   `json:"version"`
		Timestamp *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return AddonStatus{}, &SchemaViolation{Field: "payload", Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if in.Status == "" {
		return AddonStatus{}, &SchemaViolation{Field: "status", Reason: "required"}
	}
	if in.Timestamp == nil {
		return AddonStatus{}, &SchemaViolation{Field: "timestamp", Reason: "required"}
	}
	return AddonStatus{Status: in.Status, Version: in.Version, Timestamp: *in.Timestamp}, nil
}

// EncodeCommand builds the JSON payload for a command publish. The command
// ID is merged with the command-specific fields; fields may be nil.
//
// Returns:
//   - []byte: JSON payload with command_id plus caller fields
//   - error: Marshalling failure (unencodable field values)
func EncodeCommand(commandID string, fields map[string]any) ([]byte, error) {
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["command_id"] = commandID
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode command %s: %w", commandID, err)
	}
	return out, nil
}
