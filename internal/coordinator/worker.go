package coordinator

import (
	"sync"
	"time"

	"github.com/nerrad567/vault-core/internal/protocol"
	"github.com/nerrad567/vault-core/internal/registry"
)

// messageKind distinguishes inbound MQTT messages from control messages
// riding the same per-hub queue.
type messageKind int

const (
	kindInbound messageKind = iota
	kindSweep
	kindFirstSync
)

type inboundMessage struct {
	kind    messageKind
	addr    protocol.Address
	payload []byte
}

// hubState is everything the coordinator holds for one hub. The registry
// and presence fields are guarded by regMu: the worker writes, snapshot
// reads come from API goroutines. The resync fields are touched only by
// the worker, which serializes them for free.
type hubState struct {
	hubID    string
	registry *registry.HubRegistry
	regMu    sync.Mutex

	queue chan inboundMessage
	done  chan struct{}

	// Presence, guarded by regMu.
	online      bool
	addonOnline bool
	lastSeen    time.Time

	// Re-sync backoff, worker-only.
	resyncBackoff   time.Duration
	resyncNotBefore time.Time
}

// info builds the API summary under the registry lock.
func (hs *hubState) info() HubInfo {
	hs.regMu.Lock()
	defer hs.regMu.Unlock()

	stale := 0
	for _, rec := range hs.registry.Sensors {
		if rec.Stale {
			stale++
		}
	}
	return HubInfo{
		HubID:        hs.hubID,
		Version:      hs.registry.Version,
		Online:       hs.online,
		AddonOnline:  hs.addonOnline,
		LastSeen:     hs.lastSeen,
		SensorCount:  hs.registry.SensorCount(),
		StaleSensors: stale,
		LastFullSync: hs.registry.LastFullSync,
		Generation:   hs.registry.Generation,
	}
}

// worker applies one hub's messages strictly in order until the
// coordinator stops or the hub is deprovisioned.
func (c *Coordinator) worker(hs *hubState) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-hs.done:
			return
		case msg := <-hs.queue:
			c.process(hs, msg)
		}
	}
}

func (c *Coordinator) process(hs *hubState, msg inboundMessage) {
	switch msg.kind {
	case kindSweep:
		c.sweepHub(hs)
	case kindFirstSync:
		hs.regMu.Lock()
		needsSync := hs.registry.LastFullSync == 0
		hs.regMu.Unlock()
		if needsSync {
			c.requestResync(hs, "first_registration", nil)
		}
	case kindInbound:
		if msg.addr.Version != hs.registry.Version {
			// The subscription filters are per-version already; this
			// catches a hub that switched versions mid-registration.
			c.logger.Warn("dropping message with mismatched protocol version",
				"hub_id", hs.hubID,
				"got", msg.addr.Version,
				"want", hs.registry.Version,
			)
			return
		}
		c.touch(hs)
		switch msg.addr.Category {
		case protocol.CategoryTelemetry:
			c.processTelemetry(hs, msg.addr, msg.payload)
		case protocol.CategoryStatus:
			c.processStatus(hs, msg.addr, msg.payload)
		case protocol.CategoryAddon:
			c.processAddon(hs, msg.addr, msg.payload)
		}
	}
}

// touch records that the hub produced traffic.
func (c *Coordinator) touch(hs *hubState) {
	hs.regMu.Lock()
	hs.lastSeen = c.now()
	hs.regMu.Unlock()
}

func (c *Coordinator) processTelemetry(hs *hubState, addr protocol.Address, payload []byte) {
	switch addr.Params["subcategory"] {
	case protocol.TelemetrySensors:
		c.applySensors(hs, payload)
	case protocol.TelemetrySystem:
		t, err := protocol.DecodeSystemTelemetry(payload)
		if err != nil {
			c.logger.Warn("dropping malformed system telemetry", "hub_id", hs.hubID, "error", err)
			return
		}
		if c.telemetry != nil {
			c.telemetry.WriteSystemTelemetry(hs.hubID, t)
		}
	case protocol.TelemetryEvents:
		e, err := protocol.DecodeEventTelemetry(payload)
		if err != nil {
			c.logger.Warn("dropping malformed event telemetry", "hub_id", hs.hubID, "error", err)
			return
		}
		if c.telemetry != nil {
			c.telemetry.WriteSensorEvent(hs.hubID, e)
		}
	case protocol.TelemetryGeneral:
		g, err := protocol.DecodeGeneralTelemetry(payload)
		if err != nil {
			c.logger.Warn("dropping malformed general telemetry", "hub_id", hs.hubID, "error", err)
			return
		}
		c.logger.Debug("general telemetry", "hub_id", hs.hubID, "keys", len(g.Data))
	}
}

// applySensors classifies and applies a sensors telemetry payload.
// Registry mutation is synchronous; event recording and re-sync dispatch
// are handed off so the next inbound update is never stalled.
func (c *Coordinator) applySensors(hs *hubState, payload []byte) {
	t, err := protocol.DecodeSensorsTelemetry(payload)
	if err != nil {
		c.logger.Warn("dropping malformed sensors telemetry", "hub_id", hs.hubID, "error", err)
		return
	}

	updates := make([]registry.SensorUpdate, 0, len(t.Sensors))
	for _, s := range t.Sensors {
		updates = append(updates, registry.SensorUpdate{ID: s.ID, Fields: s.Fields})
	}

	var summary registry.ChangeSummary
	kind := t.Kind()

	hs.regMu.Lock()
	switch kind {
	case protocol.UpdateBasic:
		summary = hs.registry.ApplyBasic(updates, t.Timestamp)
	case protocol.UpdateDelta:
		summary = hs.registry.ApplyDelta(updates, t.Timestamp)
	case protocol.UpdateFull:
		for _, u := range updates {
			part := hs.registry.ApplyFull(u.ID, u.Fields, t.Timestamp)
			summary.Added = append(summary.Added, part.Added...)
			summary.Updated = append(summary.Updated, part.Updated...)
			summary.Unchanged = append(summary.Unchanged, part.Unchanged...)
			summary.Dropped = append(summary.Dropped, part.Dropped...)
		}
		// A full snapshot answers whatever the last poll asked for.
		hs.resyncBackoff = 0
		hs.resyncNotBefore = time.Time{}
	}
	hs.regMu.Unlock()

	c.logger.Debug("sensors update applied",
		"hub_id", hs.hubID,
		"kind", kind,
		"added", len(summary.Added),
		"updated", len(summary.Updated),
		"removed", len(summary.Removed),
		"unknown", len(summary.UnknownIDs),
	)

	if len(summary.Added) > 0 {
		c.recordEvent(hs.hubID, registry.EventSensorsAdded, map[string]any{"ids": summary.Added})
	}
	if len(summary.Removed) > 0 {
		c.recordEvent(hs.hubID, registry.EventSensorsRemoved, map[string]any{"ids": summary.Removed})
	}
	if len(summary.Dropped) > 0 {
		c.logger.Warn("sensor cap reached, dropping sensors",
			"hub_id", hs.hubID,
			"dropped", summary.Dropped,
			"cap", c.cfg.MaxSensorsPerHub,
		)
	}
	if len(summary.UnknownIDs) > 0 {
		c.requestResync(hs, "unknown_ids", summary.UnknownIDs)
	}
}

func (c *Coordinator) processStatus(hs *hubState, _ protocol.Address, payload []byte) {
	st, err := protocol.DecodeHubStatus(payload)
	if err != nil {
		c.logger.Warn("dropping malformed status", "hub_id", hs.hubID, "error", err)
		return
	}

	online := st.Status == protocol.StatusOnline
	hs.regMu.Lock()
	changed := hs.online != online
	hs.online = online
	hs.regMu.Unlock()

	if !changed {
		return
	}
	if online {
		c.logger.Info("hub online", "hub_id", hs.hubID)
		c.recordEvent(hs.hubID, registry.EventHubOnline, nil)
		return
	}
	// Offline is a liveness signal only. The registry stays; a hub that
	// reappears picks up exactly where it left off.
	c.logger.Warn("hub offline", "hub_id", hs.hubID)
	c.recordEvent(hs.hubID, registry.EventHubOffline, nil)
}

func (c *Coordinator) processAddon(hs *hubState, addr protocol.Address, payload []byte) {
	switch addr.Params["subcategory"] {
	case "status":
		st, err := protocol.DecodeAddonStatus(payload)
		if err != nil {
			c.logger.Warn("dropping malformed addon status", "hub_id", hs.hubID, "error", err)
			return
		}
		hs.regMu.Lock()
		hs.addonOnline = st.Status == protocol.StatusOnline
		hs.regMu.Unlock()
		c.logger.Debug("addon status", "hub_id", hs.hubID, "status", st.Status, "version", st.Version)
	case "telemetry":
		t, err := protocol.DecodeAddonTelemetry(payload)
		if err != nil {
			c.logger.Warn("dropping malformed addon telemetry", "hub_id", hs.hubID, "error", err)
			return
		}
		c.logger.Debug("addon telemetry", "hub_id", hs.hubID, "keys", len(t.State))
	}
}

// sweepHub runs the staleness transition for one hub and escalates to a
// full-metadata poll when sensors age past the force-refresh threshold.
func (c *Coordinator) sweepHub(hs *hubState) {
	nowUnix := float64(c.now().UnixNano()) / float64(time.Second)

	hs.regMu.Lock()
	newlyStale := hs.registry.MarkStaleIfDue(nowUnix, c.cfg.StalenessDuration().Seconds())
	overdue := hs.registry.StaleBeyond(nowUnix, c.cfg.ForceRefreshDuration().Seconds())
	hs.regMu.Unlock()

	if len(newlyStale) > 0 {
		c.logger.Info("sensors stale", "hub_id", hs.hubID, "ids", newlyStale)
		c.recordEvent(hs.hubID, registry.EventSensorsStale, map[string]any{"ids": newlyStale})
	}
	if len(overdue) > 0 {
		c.requestResync(hs, "force_refresh", overdue)
	}
}

// requestResync dispatches a sensors.poll to the hub, rate-limited by an
// exponential backoff that doubles per request and resets when a full
// snapshot lands. Called only from the hub's worker.
func (c *Coordinator) requestResync(hs *hubState, reason string, ids []string) {
	now := c.now()
	if now.Before(hs.resyncNotBefore) {
		c.logger.Debug("resync suppressed by backoff",
			"hub_id", hs.hubID,
			"reason", reason,
			"not_before", hs.resyncNotBefore,
		)
		return
	}

	if hs.resyncBackoff == 0 {
		hs.resyncBackoff = c.cfg.BackoffInitial()
	}
	hs.resyncNotBefore = now.Add(hs.resyncBackoff)
	hs.resyncBackoff *= 2
	if ceiling := c.cfg.BackoffMax(); hs.resyncBackoff > ceiling {
		hs.resyncBackoff = ceiling
	}

	hubID := hs.hubID
	version := hs.registry.Version
	c.logger.Info("requesting full re-sync", "hub_id", hubID, "reason", reason, "ids", len(ids))
	c.recordEvent(hubID, registry.EventResyncRequest, map[string]any{"reason": reason, "ids": ids})

	// Publish off the worker goroutine; a slow broker must not stall
	// application of the next inbound update.
	go func() {
		poll := protocol.SensorsPoll{}
		_, err := c.dispatcher.Dispatch(
			hubID,
			version,
			poll.CommandName(),
			poll.Fields(),
			c.commands.DefaultTimeoutDuration(),
			c.commands.MaxRetries,
		)
		if err != nil {
			c.logger.Error("resync dispatch failed", "hub_id", hubID, "error", err)
		}
	}()
}
