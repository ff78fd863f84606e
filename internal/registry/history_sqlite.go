package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// SQLiteEventStore implements EventStore using SQLite.
//
// Events land in the hub_events table; deprovision snapshots land in
// hub_archives as JSON blobs.
type SQLiteEventStore struct {
	db *sql.DB
}

// NewSQLiteEventStore creates a new SQLite event store.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteEventStore: Store instance ready for use
func NewSQLiteEventStore(db *sql.DB) *SQLiteEventStore {
	return &SQLiteEventStore{db: db}
}

// RecordEvent inserts a new hub event row.
func (s *SQLiteEventStore) RecordEvent(ctx context.Context, hubID, eventType string, detail map[string]any) error {
	if hubID == "" {
		return fmt.Errorf("hub id is required")
	}
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}
	if detail == nil {
		detail = map[string]any{}
	}

	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshalling event detail: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO hub_events (hub_id, event_type, detail) VALUES (?, ?, ?)",
		hubID,
		eventType,
		string(detailJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting hub event: %w", err)
	}

	return nil
}

// GetEvents returns recent events for a hub, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - hubID: Hub to query
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []HubEvent: Events ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (s *SQLiteEventStore) GetEvents(ctx context.Context, hubID string, limit int) ([]HubEvent, error) {
	if hubID == "" {
		return nil, fmt.Errorf("hub id is required")
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hub_id, event_type, detail, created_at
		 FROM hub_events
		 WHERE hub_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		hubID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying hub events: %w", err)
	}
	defer rows.Close()

	events := make([]HubEvent, 0, limit)
	for rows.Next() {
		var (
			event      HubEvent
			detailJSON string
			createdAt  string
		)
		if err := rows.Scan(&event.ID, &event.HubID, &event.EventType, &detailJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning hub event: %w", err)
		}
		if err := json.Unmarshal([]byte(detailJSON), &event.Detail); err != nil {
			return nil, fmt.Errorf("unmarshalling event detail: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			event.CreatedAt = ts
		} else if ts, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			event.CreatedAt = ts.UTC()
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hub events: %w", err)
	}

	return events, nil
}

// ArchiveRegistry persists a final registry snapshot for a deprovisioned hub.
func (s *SQLiteEventStore) ArchiveRegistry(ctx context.Context, snapshot *HubRegistry) error {
	if snapshot == nil || snapshot.HubID == "" {
		return fmt.Errorf("registry snapshot with hub id is required")
	}

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshalling registry snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO hub_archives (hub_id, snapshot) VALUES (?, ?)",
		snapshot.HubID,
		string(snapshotJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting hub archive: %w", err)
	}

	return nil
}

// PruneEvents deletes hub events older than the given duration. Archives
// are kept; they are the only record of deprovisioned hubs.
func (s *SQLiteEventStore) PruneEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM hub_events WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting hub events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}
