package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/vault-core/internal/dispatch"
	"github.com/nerrad567/vault-core/internal/infrastructure/config"
	"github.com/nerrad567/vault-core/internal/protocol"
	"github.com/nerrad567/vault-core/internal/registry"
)

type dispatchCall struct {
	hubID       string
	version     int
	commandName string
}

// fakeDispatcher records dispatches and acks.
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatches []dispatchCall
	acks       []protocol.CommandAck
}

func (d *fakeDispatcher) Dispatch(hubID string, version int, commandName string, fields map[string]any, timeout time.Duration, maxRetries int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatches = append(d.dispatches, dispatchCall{hubID, version, commandName})
	return fmt.Sprintf("cmd-%d", len(d.dispatches)), nil
}

func (d *fakeDispatcher) OnAck(hubID string, ack protocol.CommandAck) dispatch.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acks = append(d.acks, ack)
	return dispatch.Matched
}

func (d *fakeDispatcher) dispatchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dispatches)
}

func (d *fakeDispatcher) ackCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.acks)
}

// fakeEventStore records events in memory.
type fakeEventStore struct {
	mu       sync.Mutex
	events   []registry.HubEvent
	archived []*registry.HubRegistry
}

func (s *fakeEventStore) RecordEvent(ctx context.Context, hubID, eventType string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, registry.HubEvent{HubID: hubID, EventType: eventType, Detail: detail})
	return nil
}

func (s *fakeEventStore) GetEvents(ctx context.Context, hubID string, limit int) ([]registry.HubEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.HubEvent, 0)
	for _, e := range s.events {
		if e.HubID == hubID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeEventStore) ArchiveRegistry(ctx context.Context, snapshot *registry.HubRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived = append(s.archived, snapshot)
	return nil
}

func (s *fakeEventStore) PruneEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Vault: config.VaultConfig{ID: "vault-test", ProtocolVersion: 1},
		Reconciliation: config.ReconciliationConfig{
			StalenessThreshold:    300,
			ForceRefreshThreshold: 900,
			SweepInterval:         3600, // keep the ticker quiet; tests drive sweeps directly
			QueueSize:             64,
			MaxSensorsPerHub:      5000,
			ResyncBackoffInitial:  5,
			ResyncBackoffMax:      300,
			EventRetentionDays:    30,
		},
		Commands: config.CommandsConfig{
			DefaultTimeout: 30,
			MaxRetries:     2,
			AckGrace:       60,
			SweepInterval:  5,
		},
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeDispatcher, *fakeEventStore) {
	t.Helper()
	d := &fakeDispatcher{}
	events := &fakeEventStore{}
	c := New(testConfig(), d)
	c.SetEventStore(events)
	c.Start(context.Background())
	t.Cleanup(c.Stop)
	return c, d, events
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func sensorCount(c *Coordinator, hubID string) int {
	snap, err := c.Snapshot(hubID)
	if err != nil {
		return -1
	}
	return snap.SensorCount()
}

func TestBasicTelemetryCreatesHub(t *testing.T) {
	c, d, _ := newTestCoordinator(t)
	topics := protocol.Topics{}

	payload := []byte(`{"partial": true, "timestamp": 1000, "sensors": [{"id": "s1", "fields": {"t": 20}}]}`)
	if err := c.HandleMessage(topics.TelemetrySensors("h1", 1), payload); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	waitFor(t, func() bool { return sensorCount(c, "h1") == 1 }, "sensor never appeared in registry")

	snap, _ := c.Snapshot("h1")
	if snap.Sensors["s1"].BasicFields["t"].Value != float64(20) {
		t.Errorf("s1.t = %v, want 20", snap.Sensors["s1"].BasicFields["t"].Value)
	}

	// First registration with no prior full sync triggers one poll.
	waitFor(t, func() bool { return d.dispatchCount() == 1 }, "first-registration poll never dispatched")
	d.mu.Lock()
	call := d.dispatches[0]
	d.mu.Unlock()
	if call.hubID != "h1" || call.commandName != protocol.CmdNameSensorsPoll {
		t.Errorf("dispatched %+v, want sensors.poll to h1", call)
	}
}

func TestEnqueueShedsOldestWhenFull(t *testing.T) {
	c := New(testConfig(), &fakeDispatcher{})
	hs := &hubState{hubID: "h1", queue: make(chan inboundMessage, 1)}

	c.enqueue(hs, inboundMessage{kind: kindInbound, payload: []byte("old")})
	c.enqueue(hs, inboundMessage{kind: kindInbound, payload: []byte("new")})

	got := <-hs.queue
	if string(got.payload) != "new" {
		t.Errorf("queued payload = %q, want the newer message", got.payload)
	}
	if len(hs.queue) != 0 {
		t.Errorf("queue length = %d after shed, want 0", len(hs.queue))
	}
}

func TestMismatchedVersionMessagesDropped(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	topics := protocol.Topics{}

	c.HandleMessage(topics.TelemetrySensors("h1", 1),
		[]byte(`{"partial": true, "timestamp": 1000, "sensors": [{"id": "s1", "fields": {}}]}`))
	waitFor(t, func() bool { return sensorCount(c, "h1") == 1 }, "s1 never appeared")

	// The registry was created at v1; a v2 message for the same hub must
	// not be applied into it.
	c.HandleMessage(topics.TelemetrySensors("h1", 2),
		[]byte(`{"partial": true, "timestamp": 2000, "sensors": [{"id": "s1", "fields": {}}, {"id": "s2", "fields": {}}]}`))
	// A trailing v1 delta serializes behind the v2 message without
	// touching presence, so s2 surviving would mean the v2 one applied.
	c.HandleMessage(topics.TelemetrySensors("h1", 1),
		[]byte(`{"partial": true, "delta": true, "timestamp": 3000, "sensors": [{"id": "s1", "fields": {"t": 5}}]}`))
	waitFor(t, func() bool {
		snap, err := c.Snapshot("h1")
		return err == nil && snap.Sensors["s1"].BasicFields["t"].Value == float64(5)
	}, "trailing v1 delta never applied")

	snap, _ := c.Snapshot("h1")
	if _, ok := snap.Sensors["s2"]; ok {
		t.Error("v2 message applied into a v1 registry")
	}
}

func TestFullSnapshotResetsBackoffThenDeltaUnknownPolls(t *testing.T) {
	c, d, _ := newTestCoordinator(t)
	topics := protocol.Topics{}
	topic := topics.TelemetrySensors("h1", 1)

	// Register the hub and let the first-registration poll fire.
	c.HandleMessage(topic, []byte(`{"partial": true, "timestamp": 1000, "sensors": [{"id": "s1", "fields": {}}]}`))
	waitFor(t, func() bool { return d.dispatchCount() == 1 }, "first-registration poll never dispatched")

	// The poll answer: a full snapshot. Resets the backoff gate.
	c.HandleMessage(topic, []byte(`{"partial": false, "timestamp": 2000, "sensors": [{"id": "s1", "fields": {"model": "dht22"}}]}`))
	waitFor(t, func() bool {
		snap, err := c.Snapshot("h1")
		return err == nil && snap.LastFullSync == 2000
	}, "full snapshot never applied")

	// Delta for an unknown sensor: exactly one poll follows.
	c.HandleMessage(topic, []byte(`{"partial": true, "delta": true, "timestamp": 3000, "sensors": [{"id": "ghost", "fields": {"t": 1}}]}`))
	waitFor(t, func() bool { return d.dispatchCount() == 2 }, "unknown-id poll never dispatched")

	// A second unknown-id delta inside the backoff window is suppressed.
	c.HandleMessage(topic, []byte(`{"partial": true, "delta": true, "timestamp": 3001, "sensors": [{"id": "ghost2", "fields": {"t": 1}}]}`))
	waitFor(t, func() bool { return sensorCount(c, "h1") == 1 }, "delta processing stalled")
	time.Sleep(50 * time.Millisecond)
	if d.dispatchCount() != 2 {
		t.Errorf("dispatch count = %d, want 2 (backoff suppresses repeat polls)", d.dispatchCount())
	}

	// The unknown sensor was never created.
	snap, _ := c.Snapshot("h1")
	if _, ok := snap.Sensors["ghost"]; ok {
		t.Error("delta created a sensor")
	}
}

func TestMalformedPayloadIsDroppedNotFatal(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	topics := protocol.Topics{}
	topic := topics.TelemetrySensors("h1", 1)

	c.HandleMessage(topic, []byte(`{"partial": "not-a-bool"}`))
	c.HandleMessage(topic, []byte(`{"partial": true, "timestamp": 1000, "sensors": [{"id": "s1", "fields": {}}]}`))

	// The worker survived the malformed payload and applied the good one.
	waitFor(t, func() bool { return sensorCount(c, "h1") == 1 }, "worker did not survive malformed payload")
}

func TestStatusUpdatesPresence(t *testing.T) {
	c, _, events := newTestCoordinator(t)
	topics := protocol.Topics{}

	c.HandleMessage(topics.StatusOnline("h1", 1), []byte(`{"status": "online", "timestamp": 1000}`))
	waitFor(t, func() bool {
		info, err := c.Hub("h1")
		return err == nil && info.Online
	}, "hub never went online")

	c.HandleMessage(topics.StatusOffline("h1", 1), []byte(`{"status": "offline", "timestamp": 2000}`))
	waitFor(t, func() bool {
		info, _ := c.Hub("h1")
		return !info.Online
	}, "hub never went offline")

	// The registry survives offline; only deprovisioning destroys it.
	if _, err := c.Snapshot("h1"); err != nil {
		t.Errorf("Snapshot() after offline error = %v", err)
	}

	waitFor(t, func() bool {
		evs, _ := events.GetEvents(context.Background(), "h1", 10)
		online, offline := false, false
		for _, e := range evs {
			online = online || e.EventType == registry.EventHubOnline
			offline = offline || e.EventType == registry.EventHubOffline
		}
		return online && offline
	}, "presence events never recorded")
}

func TestAckRoutedToDispatcher(t *testing.T) {
	c, d, _ := newTestCoordinator(t)
	topics := protocol.Topics{}

	topic := topics.Ack("h1", 1, "config_update", "abc123")
	if err := c.HandleMessage(topic, []byte(`{"command_id": "abc123", "status": "ok"}`)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if d.ackCount() != 1 {
		t.Fatalf("ack count = %d, want 1", d.ackCount())
	}
	d.mu.Lock()
	ack := d.acks[0]
	d.mu.Unlock()
	if ack.CommandID != "abc123" || ack.Status != protocol.AckOK {
		t.Errorf("routed ack = %+v", ack)
	}

	// Acks do not create hub registries... the dispatcher owns that state.
	if _, err := c.Snapshot("h1"); !errors.Is(err, registry.ErrHubNotFound) {
		t.Errorf("Snapshot() error = %v, want ErrHubNotFound", err)
	}
}

func TestAddonStatusTracked(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	topics := protocol.Topics{}

	c.HandleMessage(topics.AddonStatus("h1", 1), []byte(`{"status": "online", "version": "1.4.0", "timestamp": 1000}`))
	waitFor(t, func() bool {
		info, err := c.Hub("h1")
		return err == nil && info.AddonOnline
	}, "addon never marked online")
}

func TestSweepMarksStaleAndForcesRefresh(t *testing.T) {
	c, d, events := newTestCoordinator(t)
	topics := protocol.Topics{}

	base := time.Now()
	c.HandleMessage(topics.TelemetrySensors("h1", 1),
		[]byte(fmt.Sprintf(`{"partial": true, "timestamp": %d, "sensors": [{"id": "s1", "fields": {}}]}`, base.Unix())))
	waitFor(t, func() bool { return sensorCount(c, "h1") == 1 }, "sensor never applied")
	waitFor(t, func() bool { return d.dispatchCount() == 1 }, "first-registration poll never dispatched")

	c.mu.RLock()
	hs := c.hubs["h1"]
	c.mu.RUnlock()

	// Wind the clock past the staleness threshold but not force-refresh.
	c.now = func() time.Time { return base.Add(10 * time.Minute) }
	c.sweepHub(hs)

	info, _ := c.Hub("h1")
	if info.StaleSensors != 1 {
		t.Fatalf("StaleSensors = %d after staleness window, want 1", info.StaleSensors)
	}
	if d.dispatchCount() != 1 {
		t.Errorf("dispatch count = %d, want 1 (no force refresh yet)", d.dispatchCount())
	}

	// Past the force-refresh threshold and the backoff window: poll.
	c.now = func() time.Time { return base.Add(20 * time.Minute) }
	c.sweepHub(hs)
	waitFor(t, func() bool { return d.dispatchCount() == 2 }, "force-refresh poll never dispatched")

	waitFor(t, func() bool {
		evs, _ := events.GetEvents(context.Background(), "h1", 20)
		for _, e := range evs {
			if e.EventType == registry.EventSensorsStale {
				return true
			}
		}
		return false
	}, "stale event never recorded")
}

func TestDeprovisionArchivesAndRemoves(t *testing.T) {
	c, _, events := newTestCoordinator(t)
	topics := protocol.Topics{}

	c.HandleMessage(topics.TelemetrySensors("h1", 1),
		[]byte(`{"partial": true, "timestamp": 1000, "sensors": [{"id": "s1", "fields": {}}]}`))
	waitFor(t, func() bool { return sensorCount(c, "h1") == 1 }, "sensor never applied")

	if err := c.Deprovision(context.Background(), "h1"); err != nil {
		t.Fatalf("Deprovision() error = %v", err)
	}

	if _, err := c.Snapshot("h1"); !errors.Is(err, registry.ErrHubNotFound) {
		t.Errorf("Snapshot() error = %v, want ErrHubNotFound", err)
	}

	events.mu.Lock()
	archives := len(events.archived)
	events.mu.Unlock()
	if archives != 1 {
		t.Errorf("archived %d snapshots, want 1", archives)
	}

	if err := c.Deprovision(context.Background(), "h1"); !errors.Is(err, registry.ErrHubNotFound) {
		t.Errorf("second Deprovision() error = %v, want ErrHubNotFound", err)
	}
}

func TestHubsSummary(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	topics := protocol.Topics{}

	c.HandleMessage(topics.StatusOnline("h2", 1), []byte(`{"status": "online", "timestamp": 1}`))
	c.HandleMessage(topics.StatusOnline("h1", 1), []byte(`{"status": "online", "timestamp": 1}`))

	waitFor(t, func() bool { return len(c.Hubs()) == 2 }, "hubs never registered")

	infos := c.Hubs()
	if infos[0].HubID != "h1" || infos[1].HubID != "h2" {
		t.Errorf("Hubs() order = %s,%s, want h1,h2", infos[0].HubID, infos[1].HubID)
	}
}
