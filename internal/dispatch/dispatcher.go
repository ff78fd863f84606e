package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/vault-core/internal/protocol"
)

// Publisher is the outbound transport the dispatcher publishes through.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishQoS(topic string, payload []byte) error
}

// Logger defines the logging interface used by the Dispatcher.
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

// pendingKey correlates acks to commands. Command IDs are scoped per hub.
type pendingKey struct {
	hubID     string
	commandID string
}

// Dispatcher sends commands to hubs and correlates the acknowledgements
// that come back. It owns the pending-command table; Sweep applies the
// timeout/retry policy.
//
// All public methods are thread-safe. The table is touched from two
// directions (dispatch callers and the inbound-ack path), so every
// read-modify-write of a PendingCommand happens under the table lock.
type Dispatcher struct {
	publisher Publisher
	topics    protocol.Topics
	logger    Logger

	// ackGrace is how long terminal entries linger for duplicate-ack
	// detection before the sweep purges them.
	ackGrace time.Duration

	pending map[pendingKey]*PendingCommand
	mu      sync.Mutex

	// sweepMu enforces a single in-flight sweep.
	sweepMu sync.Mutex

	// newID and now are injectable for tests.
	newID func() string
	now   func() time.Time
}

// New creates a Dispatcher publishing through the given transport.
//
// Parameters:
//   - publisher: Outbound transport (typically *mqtt.Client)
//   - ackGrace: Retention window for terminal entries (duplicate detection)
//
// Returns:
//   - *Dispatcher: Ready for use
func New(publisher Publisher, ackGrace time.Duration) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		logger:    noopLogger{},
		ackGrace:  ackGrace,
		pending:   make(map[pendingKey]*PendingCommand),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Dispatch publishes a command to one hub and records a Pending entry.
//
// The command name uses domain.action form (e.g. "sensors.poll"); it maps
// to the topic hubs/{hub}/v{n}/cmd/{domain}/{action}. A generated command
// ID is merged into the payload and returned to the caller for tracking.
//
// Parameters:
//   - hubID: Target hub
//   - version: Protocol version for the topic
//   - commandName: domain.action command name
//   - fields: Command-specific payload fields (may be nil)
//   - timeout: Per-attempt ack deadline
//   - maxRetries: Re-dispatches allowed on silence
//
// Returns:
//   - string: The generated command ID
//   - error: *protocol.AddressingError for an unroutable target, or a
//     wrapped publish failure
func (d *Dispatcher) Dispatch(hubID string, version int, commandName string, fields map[string]any, timeout time.Duration, maxRetries int) (string, error) {
	if err := protocol.ValidateAddress(hubID, version); err != nil {
		return "", err
	}
	domain, action, found := strings.Cut(commandName, ".")
	if !found || domain == "" || action == "" {
		return "", &protocol.AddressingError{Field: "command_name", Reason: "must be domain.action"}
	}

	commandID := d.newID()
	payload, err := protocol.EncodeCommand(commandID, fields)
	if err != nil {
		return "", err
	}
	topic := d.topics.Cmd(hubID, version, domain, action)

	now := d.now()
	cmd := &PendingCommand{
		CommandID:        commandID,
		HubID:            hubID,
		Version:          version,
		CommandName:      commandName,
		Topic:            topic,
		Payload:          payload,
		IssuedAt:         now,
		TimeoutAt:        now.Add(timeout),
		Timeout:          timeout,
		RetriesRemaining: maxRetries,
		Status:           StatusPending,
	}

	// The entry must exist before the publish goes out: a fast hub's ack
	// can arrive while PublishQoS is still waiting on its token, and an
	// ack with no entry correlates as UnknownCommand.
	key := pendingKey{hubID, commandID}
	d.mu.Lock()
	d.pending[key] = cmd
	d.mu.Unlock()

	if err := d.publisher.PublishQoS(topic, payload); err != nil {
		d.mu.Lock()
		if !cmd.Status.Terminal() {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		return "", fmt.Errorf("dispatching %s to %s: %w", commandName, hubID, err)
	}

	d.logger.Debug("command dispatched",
		"hub_id", hubID,
		"command", commandName,
		"command_id", commandID,
		"timeout", timeout,
		"max_retries", maxRetries,
	)
	return commandID, nil
}

// DispatchBroadcast publishes a command to every hub at once.
//
// Broadcasts are fire-and-forget: hubs do not ack them, so no pending
// entry is recorded.
//
// Returns:
//   - string: The generated command ID embedded in the payload
//   - error: Addressing or publish failure
func (d *Dispatcher) DispatchBroadcast(version int, command string, fields map[string]any) (string, error) {
	if version < 1 {
		return "", &protocol.AddressingError{Field: "version", Reason: "must be a positive integer"}
	}
	if command == "" || strings.ContainsAny(command, "/+#") {
		return "", &protocol.AddressingError{Field: "command", Reason: "must be a non-empty token"}
	}

	commandID := d.newID()
	payload, err := protocol.EncodeCommand(commandID, fields)
	if err != nil {
		return "", err
	}
	topic := d.topics.BroadcastCmd(version, command)

	if err := d.publisher.PublishQoS(topic, payload); err != nil {
		return "", fmt.Errorf("broadcasting %s: %w", command, err)
	}

	d.logger.Info("broadcast dispatched", "command", command, "command_id", commandID)
	return commandID, nil
}

// OnAck correlates an inbound acknowledgement with the pending table.
//
// A Pending entry transitions to Acked or Failed per the ack status and
// the call returns Matched. An already-terminal entry returns
// DuplicateIgnored and stays untouched; acks may be redelivered by the
// at-least-once transport, and a late ack after TimedOut lands here too.
// A missing entry returns UnknownCommand.
//
// Parameters:
//   - hubID: Hub the ack arrived from (topic-derived)
//   - ack: Validated ack payload
//
// Returns:
//   - Outcome: Matched, DuplicateIgnored, or UnknownCommand
func (d *Dispatcher) OnAck(hubID string, ack protocol.CommandAck) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd, ok := d.pending[pendingKey{hubID, ack.CommandID}]
	if !ok {
		d.logger.Info("ack for unknown command",
			"hub_id", hubID,
			"command_id", ack.CommandID,
			"status", ack.Status,
		)
		return UnknownCommand
	}
	if cmd.Status.Terminal() {
		return DuplicateIgnored
	}

	if ack.Status == protocol.AckOK {
		cmd.Status = StatusAcked
	} else {
		cmd.Status = StatusFailed
	}
	cmd.Detail = ack.Detail
	cmd.CompletedAt = d.now()

	d.logger.Debug("ack correlated",
		"hub_id", hubID,
		"command", cmd.CommandName,
		"command_id", cmd.CommandID,
		"status", cmd.Status,
	)
	return Matched
}

// Sweep applies the timeout/retry policy to the pending table.
//
// Pending entries past their deadline are re-dispatched (same command ID,
// decremented retry count, fresh deadline) while retries remain; once
// exhausted they transition to TimedOut and are returned for
// application-level handling. This is the system's only retry path:
// commands are retried on silence, never on explicit error acks.
//
// Terminal entries older than the grace window are purged.
//
// A sweep already in flight makes this call a no-op; sweeps never run
// concurrently with themselves.
//
// Parameters:
//   - now: Sweep instant
//
// Returns:
//   - []PendingCommand: Copies of entries that reached TimedOut this sweep
func (d *Dispatcher) Sweep(now time.Time) []PendingCommand {
	if !d.sweepMu.TryLock() {
		return nil
	}
	defer d.sweepMu.Unlock()

	var (
		timedOut []PendingCommand
		retries  []*PendingCommand
	)

	d.mu.Lock()
	for key, cmd := range d.pending {
		switch {
		case cmd.Status == StatusPending && !cmd.TimeoutAt.After(now):
			if cmd.RetriesRemaining > 0 {
				cmd.RetriesRemaining--
				cmd.TimeoutAt = now.Add(cmd.Timeout)
				retries = append(retries, cmd)
			} else {
				cmd.Status = StatusTimedOut
				cmd.CompletedAt = now
				timedOut = append(timedOut, *cmd)
			}
		case cmd.Status.Terminal() && now.Sub(cmd.CompletedAt) > d.ackGrace:
			delete(d.pending, key)
		}
	}
	d.mu.Unlock()

	// Re-publishes happen outside the table lock; a slow broker must not
	// stall ack correlation.
	for _, cmd := range retries {
		if err := d.publisher.PublishQoS(cmd.Topic, cmd.Payload); err != nil {
			d.logger.Warn("retry publish failed",
				"hub_id", cmd.HubID,
				"command_id", cmd.CommandID,
				"error", err,
			)
			continue
		}
		d.logger.Info("command retried",
			"hub_id", cmd.HubID,
			"command", cmd.CommandName,
			"command_id", cmd.CommandID,
			"retries_remaining", cmd.RetriesRemaining,
		)
	}

	for _, cmd := range timedOut {
		d.logger.Warn("command timed out",
			"hub_id", cmd.HubID,
			"command", cmd.CommandName,
			"command_id", cmd.CommandID,
		)
	}
	return timedOut
}

// Run sweeps the pending table on a fixed interval until the context is
// cancelled. Intended to be launched as a goroutine from main.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(d.now())
		}
	}
}

// Get returns a copy of one pending entry.
//
// Returns:
//   - PendingCommand: Copy of the entry
//   - bool: false if no entry exists for (hubID, commandID)
func (d *Dispatcher) Get(hubID, commandID string) (PendingCommand, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd, ok := d.pending[pendingKey{hubID, commandID}]
	if !ok {
		return PendingCommand{}, false
	}
	return *cmd, true
}

// List returns copies of every tracked entry, optionally filtered by hub.
func (d *Dispatcher) List(hubID string) []PendingCommand {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]PendingCommand, 0, len(d.pending))
	for key, cmd := range d.pending {
		if hubID != "" && key.hubID != hubID {
			continue
		}
		out = append(out, *cmd)
	}
	return out
}

// PendingCount returns the number of tracked entries (all statuses).
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
