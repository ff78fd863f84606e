package protocol

import (
	"errors"
	"testing"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"telemetry system", topics.TelemetrySystem("hub123", 1), "hubs/hub123/v1/telemetry/system"},
		{"telemetry sensors", topics.TelemetrySensors("hub123", 1), "hubs/hub123/v1/telemetry/sensors"},
		{"telemetry events", topics.TelemetryEvents("hub123", 2), "hubs/hub123/v2/telemetry/events"},
		{"telemetry general", topics.TelemetryGeneral("hub123", 1), "hubs/hub123/v1/telemetry/general"},
		{"status online", topics.StatusOnline("hub123", 1), "hubs/hub123/v1/status/online"},
		{"status offline", topics.StatusOffline("hub123", 1), "hubs/hub123/v1/status/offline"},
		{"cmd sensors poll", topics.CmdSensorsPoll("hub123", 1), "hubs/hub123/v1/cmd/sensors/poll"},
		{"cmd sensors set", topics.CmdSensorsSet("hub123", 1), "hubs/hub123/v1/cmd/sensors/set"},
		{"cmd config update", topics.CmdConfigUpdate("hub123", 1), "hubs/hub123/v1/cmd/config/update"},
		{"cmd firmware update", topics.CmdFirmwareUpdate("hub123", 1), "hubs/hub123/v1/cmd/firmware/update"},
		{"cmd tunnel start", topics.CmdTunnelStart("hub123", 1), "hubs/hub123/v1/cmd/tunnel/start"},
		{"cmd tunnel stop", topics.CmdTunnelStop("hub123", 1), "hubs/hub123/v1/cmd/tunnel/stop"},
		{"ack", topics.Ack("hub123", 1, "sensors_poll", "abc123"), "hubs/hub123/v1/ack/sensors_poll/abc123"},
		{"addon telemetry", topics.AddonTelemetry("hub123", 1), "hubs/hub123/v1/addon/ha/telemetry"},
		{"addon status", topics.AddonStatus("hub123", 1), "hubs/hub123/v1/addon/ha/status"},
		{"addon cmd", topics.AddonCmd("hub123", 1, "restart"), "hubs/hub123/v1/addon/ha/cmd/restart"},
		{"broadcast cmd", topics.BroadcastCmd(1, "refresh"), "hubs/broadcast/v1/cmd/refresh"},
		{"wildcard telemetry", topics.AllTelemetry(1), "hubs/+/v1/telemetry/+"},
		{"wildcard status", topics.AllStatus(1), "hubs/+/v1/status/+"},
		{"wildcard acks", topics.AllAcks(1), "hubs/+/v1/ack/+/+"},
		{"wildcard addon", topics.AllAddon(1), "hubs/+/v1/addon/ha/#"},
		{"wildcard hub traffic", topics.AllHubTraffic("hub123", 1), "hubs/hub123/v1/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseTopicRoundTrip(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name       string
		topic      string
		wantHub    string
		wantVer    int
		wantCat    Category
		wantParams map[string]string
	}{
		{
			name:       "telemetry sensors",
			topic:      topics.TelemetrySensors("hub123", 1),
			wantHub:    "hub123",
			wantVer:    1,
			wantCat:    CategoryTelemetry,
			wantParams: map[string]string{"subcategory": "sensors"},
		},
		{
			name:       "status offline",
			topic:      topics.StatusOffline("hub-a", 3),
			wantHub:    "hub-a",
			wantVer:    3,
			wantCat:    CategoryStatus,
			wantParams: map[string]string{"subcategory": "offline"},
		},
		{
			name:       "hub command",
			topic:      topics.Cmd("hub123", 1, "sensors", "poll"),
			wantHub:    "hub123",
			wantVer:    1,
			wantCat:    CategoryCmd,
			wantParams: map[string]string{"domain": "sensors", "action": "poll"},
		},
		{
			name:       "ack",
			topic:      topics.Ack("hub123", 1, "config_update", "id-42"),
			wantHub:    "hub123",
			wantVer:    1,
			wantCat:    CategoryAck,
			wantParams: map[string]string{"command_name": "config_update", "command_id": "id-42"},
		},
		{
			name:       "addon cmd",
			topic:      topics.AddonCmd("hub123", 1, "restart"),
			wantHub:    "hub123",
			wantVer:    1,
			wantCat:    CategoryAddon,
			wantParams: map[string]string{"subcategory": "cmd", "command": "restart"},
		},
		{
			name:       "broadcast",
			topic:      topics.BroadcastCmd(1, "refresh"),
			wantHub:    "broadcast",
			wantVer:    1,
			wantCat:    CategoryCmd,
			wantParams: map[string]string{"command": "refresh"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseTopic(tt.topic)
			if err != nil {
				t.Fatalf("ParseTopic(%q) returned error: %v", tt.topic, err)
			}
			if addr.HubID != tt.wantHub {
				t.Errorf("HubID = %q, want %q", addr.HubID, tt.wantHub)
			}
			if addr.Version != tt.wantVer {
				t.Errorf("Version = %d, want %d", addr.Version, tt.wantVer)
			}
			if addr.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", addr.Category, tt.wantCat)
			}
			if addr.Broadcast != (tt.wantHub == BroadcastHubID) {
				t.Errorf("Broadcast = %v", addr.Broadcast)
			}
			for k, want := range tt.wantParams {
				if got := addr.Params[k]; got != want {
					t.Errorf("Params[%q] = %q, want %q", k, got, want)
				}
			}
			if len(addr.Params) != len(tt.wantParams) {
				t.Errorf("got %d params, want %d", len(addr.Params), len(tt.wantParams))
			}
		})
	}
}

func TestParseTopicRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		topic string
	}{
		{"empty", ""},
		{"wrong prefix", "devices/hub123/v1/telemetry/system"},
		{"missing version prefix", "hubs/hub123/1/telemetry/system"},
		{"non-numeric version", "hubs/hub123/vx/telemetry/system"},
		{"zero version", "hubs/hub123/v0/telemetry/system"},
		{"unknown category", "hubs/hub123/v1/metrics/system"},
		{"unknown telemetry subcategory", "hubs/hub123/v1/telemetry/bogus"},
		{"telemetry extra segments", "hubs/hub123/v1/telemetry/system/extra"},
		{"cmd missing action", "hubs/hub123/v1/cmd/sensors"},
		{"ack missing command id", "hubs/hub123/v1/ack/sensors_poll"},
		{"addon wrong namespace", "hubs/hub123/v1/addon/zwave/telemetry"},
		{"addon cmd missing command", "hubs/hub123/v1/addon/ha/cmd"},
		{"broadcast cmd extra segments", "hubs/broadcast/v1/cmd/refresh/extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTopic(tt.topic)
			if err == nil {
				t.Fatalf("ParseTopic(%q) succeeded, want error", tt.topic)
			}
			if !errors.Is(err, ErrAddressing) {
				t.Errorf("error %v does not match ErrAddressing", err)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		hubID   string
		version int
		wantErr bool
	}{
		{"valid", "hub123", 1, false},
		{"empty hub", "", 1, true},
		{"slash in hub", "hub/123", 1, true},
		{"wildcard in hub", "hub+", 1, true},
		{"hash in hub", "hub#", 1, true},
		{"zero version", "hub123", 0, true},
		{"negative version", "hub123", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.hubID, tt.version)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q, %d) error = %v, wantErr %v", tt.hubID, tt.version, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrAddressing) {
				t.Errorf("error %v does not match ErrAddressing", err)
			}
		})
	}
}
