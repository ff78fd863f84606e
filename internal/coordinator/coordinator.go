package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/vault-core/internal/dispatch"
	"github.com/nerrad567/vault-core/internal/infrastructure/config"
	"github.com/nerrad567/vault-core/internal/protocol"
	"github.com/nerrad567/vault-core/internal/registry"
)

// CommandDispatcher is the slice of the dispatcher the coordinator uses:
// issuing re-sync polls and routing inbound acks. *dispatch.Dispatcher
// satisfies it.
type CommandDispatcher interface {
	Dispatch(hubID string, version int, commandName string, fields map[string]any, timeout time.Duration, maxRetries int) (string, error)
	OnAck(hubID string, ack protocol.CommandAck) dispatch.Outcome
}

// TelemetryWriter receives hub telemetry for time-series storage.
// Implementations must not block; the InfluxDB writer buffers internally.
type TelemetryWriter interface {
	WriteSystemTelemetry(hubID string, t protocol.SystemTelemetry)
	WriteSensorEvent(hubID string, e protocol.EventTelemetry)
}

// Logger defines the logging interface used by the Coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Coordinator owns the per-hub registry lifecycle and drives reconciliation.
//
// Inbound messages for one hub are applied strictly one at a time by that
// hub's worker goroutine; different hubs are fully independent. Registry
// mutation inside a worker is synchronous; anything that does I/O (re-sync
// dispatch, event recording) is handed off so it never stalls the next
// inbound update.
type Coordinator struct {
	cfg      config.ReconciliationConfig
	commands config.CommandsConfig
	version  int

	dispatcher CommandDispatcher
	events     registry.EventStore
	telemetry  TelemetryWriter
	logger     Logger

	hubs map[string]*hubState
	mu   sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// nextPrune throttles event history pruning; only the sweep loop
	// touches it.
	nextPrune time.Time

	// now is injectable for tests.
	now func() time.Time
}

// HubInfo is a point-in-time summary of one hub for API consumers.
type HubInfo struct {
	HubID        string    `json:"hub_id"`
	Version      int       `json:"version"`
	Online       bool      `json:"online"`
	AddonOnline  bool      `json:"addon_online"`
	LastSeen     time.Time `json:"last_seen"`
	SensorCount  int       `json:"sensor_count"`
	StaleSensors int       `json:"stale_sensors"`
	LastFullSync float64   `json:"last_full_sync,omitempty"`
	Generation   uint64    `json:"generation"`
}

// New creates a Coordinator.
//
// Parameters:
//   - cfg: Full vault configuration (reconciliation, commands, identity)
//   - dispatcher: Command dispatcher for re-sync polls and ack routing
//
// Returns:
//   - *Coordinator: Not yet started; call Start before routing messages
func New(cfg *config.Config, dispatcher CommandDispatcher) *Coordinator {
	return &Coordinator{
		cfg:        cfg.Reconciliation,
		commands:   cfg.Commands,
		version:    cfg.Vault.ProtocolVersion,
		dispatcher: dispatcher,
		logger:     noopLogger{},
		hubs:       make(map[string]*hubState),
		now:        time.Now,
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetEventStore enables hub event recording and deprovision archival.
func (c *Coordinator) SetEventStore(events registry.EventStore) {
	c.events = events
}

// SetTelemetryWriter enables time-series storage of hub telemetry.
func (c *Coordinator) SetTelemetryWriter(w TelemetryWriter) {
	c.telemetry = w
}

// Version returns the protocol version this coordinator speaks.
func (c *Coordinator) Version() int {
	return c.version
}

// Start launches the staleness sweep loop. Must be called before messages
// are routed in.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.sweepLoop()

	c.logger.Info("coordinator started",
		"protocol_version", c.version,
		"staleness_threshold", c.cfg.StalenessDuration(),
		"sweep_interval", c.cfg.SweepDuration(),
	)
}

// Stop cancels all workers and waits for them to drain.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("coordinator stopped")
}

// sweepLoop fans a staleness tick into every hub worker on a fixed
// interval. Ticks ride the same queue as inbound messages, so staleness
// marking is serialized with updates like everything else.
func (c *Coordinator) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.SweepDuration())
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			for _, hs := range c.hubs {
				select {
				case hs.queue <- inboundMessage{kind: kindSweep}:
				default:
					// Queue full: the hub is busy, the next tick will catch up.
				}
			}
			c.mu.RUnlock()

			c.pruneEvents()
		}
	}
}

// pruneEvents trims aged hub event history, at most once per hour.
func (c *Coordinator) pruneEvents() {
	if c.events == nil {
		return
	}
	now := c.now()
	if now.Before(c.nextPrune) {
		return
	}
	c.nextPrune = now.Add(time.Hour)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pruned, err := c.events.PruneEvents(ctx, c.cfg.EventRetention())
		if err != nil {
			c.logger.Warn("pruning hub events", "error", err)
			return
		}
		if pruned > 0 {
			c.logger.Info("pruned hub events", "count", pruned, "retention", c.cfg.EventRetention())
		}
	}()
}

// HandleMessage routes one inbound MQTT message. It is the subscription
// handler for the telemetry, status, ack, and addon wildcard patterns and
// is safe for concurrent use.
//
// Acks go straight to the dispatcher (it owns its own locking); everything
// else is enqueued to the hub's worker. A hub's registry is created on the
// first observed message of any category. Malformed topics and payloads
// are dropped with a log entry; they never propagate.
//
// Returns:
//   - error: Parse or validation failure (for the transport's handler log)
func (c *Coordinator) HandleMessage(topic string, payload []byte) error {
	addr, err := protocol.ParseTopic(topic)
	if err != nil {
		return err
	}
	if addr.Broadcast {
		return nil
	}

	if addr.Category == protocol.CategoryAck {
		ack, err := protocol.DecodeCommandAck(payload)
		if err != nil {
			return err
		}
		outcome := c.dispatcher.OnAck(addr.HubID, ack)
		c.logger.Debug("ack routed",
			"hub_id", addr.HubID,
			"command_id", ack.CommandID,
			"outcome", outcome,
		)
		return nil
	}

	hs := c.hub(addr.HubID, addr.Version)
	c.enqueue(hs, inboundMessage{kind: kindInbound, addr: addr, payload: payload})
	return nil
}

// enqueue adds an inbound message to the hub's queue. When the queue is
// full the oldest queued message is shed to make room: with last-write-wins
// reconciliation the newest message always carries the more current state.
func (c *Coordinator) enqueue(hs *hubState, msg inboundMessage) {
	select {
	case hs.queue <- msg:
		return
	default:
	}

	select {
	case dropped := <-hs.queue:
		c.logger.Warn("hub queue full, dropping oldest message",
			"hub_id", hs.hubID,
			"dropped_category", dropped.addr.Category,
		)
	default:
	}
	select {
	case hs.queue <- msg:
	default:
		// Lost the slot to a concurrent producer; shed the newcomer.
		c.logger.Warn("hub queue full, dropping message",
			"hub_id", hs.hubID,
			"category", msg.addr.Category,
		)
	}
}

// hub returns the state for a hub, creating registry and worker on first
// sight.
func (c *Coordinator) hub(hubID string, version int) *hubState {
	c.mu.RLock()
	hs, ok := c.hubs[hubID]
	c.mu.RUnlock()
	if ok {
		return hs
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if hs, ok = c.hubs[hubID]; ok {
		return hs
	}

	reg := registry.NewHubRegistry(hubID, version)
	reg.MaxSensors = c.cfg.MaxSensorsPerHub

	hs = &hubState{
		hubID:    hubID,
		registry: reg,
		queue:    make(chan inboundMessage, c.cfg.QueueSize),
		done:     make(chan struct{}),
	}
	c.hubs[hubID] = hs

	c.wg.Add(1)
	go c.worker(hs)

	// A hub with no prior full sync gets a poll straight away.
	select {
	case hs.queue <- inboundMessage{kind: kindFirstSync}:
	default:
	}

	c.logger.Info("hub registered", "hub_id", hubID, "version", version)
	return hs
}

// Snapshot returns a deep copy of one hub's registry.
//
// Returns:
//   - *registry.HubRegistry: Isolated snapshot safe to read and serialize
//   - error: registry.ErrHubNotFound for an unknown hub
func (c *Coordinator) Snapshot(hubID string) (*registry.HubRegistry, error) {
	c.mu.RLock()
	hs, ok := c.hubs[hubID]
	c.mu.RUnlock()
	if !ok {
		return nil, registry.ErrHubNotFound
	}

	hs.regMu.Lock()
	defer hs.regMu.Unlock()
	return hs.registry.DeepCopy(), nil
}

// Hubs returns a summary of every known hub, sorted by hub ID.
func (c *Coordinator) Hubs() []HubInfo {
	c.mu.RLock()
	states := make([]*hubState, 0, len(c.hubs))
	for _, hs := range c.hubs {
		states = append(states, hs)
	}
	c.mu.RUnlock()

	infos := make([]HubInfo, 0, len(states))
	for _, hs := range states {
		infos = append(infos, hs.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].HubID < infos[j].HubID })
	return infos
}

// Hub returns the summary for one hub.
//
// Returns:
//   - HubInfo: Point-in-time summary
//   - error: registry.ErrHubNotFound for an unknown hub
func (c *Coordinator) Hub(hubID string) (HubInfo, error) {
	c.mu.RLock()
	hs, ok := c.hubs[hubID]
	c.mu.RUnlock()
	if !ok {
		return HubInfo{}, registry.ErrHubNotFound
	}
	return hs.info(), nil
}

// Events returns recent recorded events for a hub, newest first. Without
// an event store configured the result is empty.
func (c *Coordinator) Events(ctx context.Context, hubID string, limit int) ([]registry.HubEvent, error) {
	if c.events == nil {
		return []registry.HubEvent{}, nil
	}
	return c.events.GetEvents(ctx, hubID, limit)
}

// Deprovision removes a hub: its worker stops, its registry is archived
// (when an event store is configured), and its state is dropped. This is
// the only path that destroys a registry; heartbeat silence never does.
//
// Returns:
//   - error: registry.ErrHubNotFound, or an archival failure
func (c *Coordinator) Deprovision(ctx context.Context, hubID string) error {
	c.mu.Lock()
	hs, ok := c.hubs[hubID]
	if ok {
		delete(c.hubs, hubID)
	}
	c.mu.Unlock()
	if !ok {
		return registry.ErrHubNotFound
	}

	close(hs.done)

	hs.regMu.Lock()
	snapshot := hs.registry.DeepCopy()
	hs.regMu.Unlock()

	if c.events != nil {
		if err := c.events.ArchiveRegistry(ctx, snapshot); err != nil {
			c.logger.Error("archiving deprovisioned hub", "hub_id", hubID, "error", err)
			return err
		}
		c.recordEvent(hubID, registry.EventDeprovisioned, map[string]any{
			"sensor_count": snapshot.SensorCount(),
		})
	}

	c.logger.Info("hub deprovisioned", "hub_id", hubID, "sensors", snapshot.SensorCount())
	return nil
}

// recordEvent persists an event without blocking the caller.
func (c *Coordinator) recordEvent(hubID, eventType string, detail map[string]any) {
	if c.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.events.RecordEvent(ctx, hubID, eventType, detail); err != nil {
			c.logger.Warn("recording hub event", "hub_id", hubID, "event", eventType, "error", err)
		}
	}()
}
