// Package registry implements the per-hub sensor reconciliation engine.
//
// Each hub exposes a dynamically changing sensor set described to the vault
// through three asymmetric update kinds: basic enumerations (authoritative
// for presence, minimal fields), delta updates (field changes for known
// sensors), and full metadata snapshots (complete attribute sets, fetched on
// demand). Updates arrive out of order over an at-least-once transport with
// no sequence numbers; convergence comes from per-field timestamps with a
// last-write-wins rule that is independent of update kind and arrival order.
//
// HubRegistry is a pure mutation engine: no I/O, no clocks (time is a
// parameter), no locking. The reconciliation coordinator owns one registry
// per hub and serializes mutations through a single worker; reads from other
// goroutines go through DeepCopy snapshots.
//
// Key properties the engine maintains:
//   - Applying the same update twice yields an identical registry
//     (timestamp equality short-circuits every write, including Generation).
//   - Updates to disjoint fields commute.
//   - A delta never creates a sensor; unknown IDs surface in the change
//     summary so the coordinator can request a full re-sync.
//   - Staleness marking is the sole time-driven transition and is
//     monotonic until the next applied update.
//
// The EventStore records lifecycle and reconciliation events to SQLite for
// the audit trail; the registry itself is deliberately not persisted, since
// any hub can rebuild it with one basic enumeration and a poll.
package registry
