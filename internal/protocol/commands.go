package protocol

// Command payload builders (vault → hub). Each builder names its command
// topic and yields the command-specific fields; EncodeCommand merges in the
// command ID at dispatch time.

// CommandPayload is implemented by every typed command builder.
type CommandPayload interface {
	// CommandName returns the domain.action name for topic construction.
	CommandName() string

	// Fields returns the command-specific payload fields, without command_id.
	Fields() map[string]any
}

// ConfigUpdate pushes a new configuration revision to a hub.
type ConfigUpdate struct {
	Version int
	Config  map[string]any
}

func (ConfigUpdate) CommandName() string { return CmdNameConfigUpdate }

func (c ConfigUpdate) Fields() map[string]any {
	return map[string]any{"version": c.Version, "config": c.Config}
}

// FirmwareUpdate instructs a hub to fetch and apply a firmware image.
// Transfer mechanics are the hub's concern; the vault only names the source.
type FirmwareUpdate struct {
	DownloadURL string
	Checksum    string
}

func (FirmwareUpdate) CommandName() string { return CmdNameFirmwareUpdate }

func (f FirmwareUpdate) Fields() map[string]any {
	return map[string]any{"download_url": f.DownloadURL, "checksum": f.Checksum}
}

// TunnelStart asks a hub to open its maintenance tunnel.
type TunnelStart struct {
	Metadata map[string]any
}

func (TunnelStart) CommandName() string { return CmdNameTunnelStart }

func (t TunnelStart) Fields() map[string]any {
	return map[string]any{"metadata": emptyIfNil(t.Metadata)}
}

// TunnelStop asks a hub to close its maintenance tunnel.
type TunnelStop struct {
	Metadata map[string]any
}

func (TunnelStop) CommandName() string { return CmdNameTunnelStop }

func (t TunnelStop) Fields() map[string]any {
	return map[string]any{"metadata": emptyIfNil(t.Metadata)}
}

// SensorsPoll requests full metadata. An empty EntityID polls every sensor
// the hub knows about; a non-empty one targets a single sensor.
type SensorsPoll struct {
	EntityID string
}

func (SensorsPoll) CommandName() string { return CmdNameSensorsPoll }

func (s SensorsPoll) Fields() map[string]any {
	if s.EntityID == "" {
		return nil
	}
	return map[string]any{"entity_id": s.EntityID}
}

// SensorsSet pushes sensor configuration changes to a hub.
type SensorsSet struct {
	Settings map[string]any
}

func (SensorsSet) CommandName() string { return CmdNameSensorsSet }

func (s SensorsSet) Fields() map[string]any {
	return map[string]any{"settings": emptyIfNil(s.Settings)}
}

// AddonCommand relays an action to the hub's Home Assistant addon.
type AddonCommand struct {
	Action string
	Data   map[string]any
}

func (AddonCommand) CommandName() string { return CmdNameAddonHA }

func (a AddonCommand) Fields() map[string]any {
	return map[string]any{"action": a.Action, "data": emptyIfNil(a.Data)}
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
