package registry

import (
	"context"
	"time"
)

// Hub event type values.
const (
	EventHubOnline      = "hub_online"
	EventHubOffline     = "hub_offline"
	EventSensorsAdded   = "sensors_added"
	EventSensorsRemoved = "sensors_removed"
	EventSensorsStale   = "sensors_stale"
	EventResyncRequest  = "resync_request"
	EventDeprovisioned  = "deprovisioned"
)

// HubEvent is one recorded change in a hub's reconciled state.
//
// Events carry a JSON detail blob (sensor IDs, counts) rather than full
// registry snapshots; the registry itself is rebuildable from the hub, so
// the event log is an audit trail, not a recovery mechanism.
type HubEvent struct {
	// ID is the auto-incremented primary key for the event row.
	ID int64 `json:"id"`

	// HubID is the hub the event belongs to.
	HubID string `json:"hub_id"`

	// EventType is one of the Event* constants.
	EventType string `json:"event_type"`

	// Detail is the JSON detail blob for the event.
	Detail map[string]any `json:"detail"`

	// CreatedAt is the timestamp of the event (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// EventStore records and retrieves hub lifecycle and reconciliation events.
//
// Implementations must be thread-safe and use UTC timestamps.
type EventStore interface {
	// RecordEvent persists one hub event.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - hubID: Hub the event belongs to
	//   - eventType: One of the Event* constants
	//   - detail: Event detail (may be nil)
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordEvent(ctx context.Context, hubID, eventType string, detail map[string]any) error

	// GetEvents returns recent events for a hub, ordered newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - hubID: Hub to query
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []HubEvent: Ordered newest-first events (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	GetEvents(ctx context.Context, hubID string, limit int) ([]HubEvent, error)

	// ArchiveRegistry persists a final registry snapshot when a hub is
	// deprovisioned, so operators can inspect what the hub looked like.
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	ArchiveRegistry(ctx context.Context, snapshot *HubRegistry) error

	// PruneEvents deletes events older than the given duration.
	//
	// Returns:
	//   - int64: Number of events deleted
	//   - error: nil on success, otherwise the underlying deletion error
	PruneEvents(ctx context.Context, olderThan time.Duration) (int64, error)
}
