// Package coordinator bridges the pure sensor registry and the command
// dispatcher: it owns every hub's registry, serializes updates through one
// worker goroutine per hub, and decides when a hub needs a full re-sync.
//
// Concurrency model: inbound messages for one hub apply strictly in order
// on that hub's worker; hubs are fully independent. The worker performs
// registry mutation synchronously and hands all I/O (re-sync publishes,
// event recording) off to short-lived goroutines, so a slow broker or
// database never stalls reconciliation. Staleness ticks ride the same
// per-hub queue as messages, keeping the time-driven transition serialized
// with everything else.
//
// Re-sync triggers, all funneled through a per-hub exponential backoff:
//   - a delta update naming sensors the registry does not know,
//   - sensors aging past the force-refresh threshold,
//   - first registration of a hub with no prior full sync.
//
// The backoff doubles per request and resets when a full snapshot arrives,
// so a hub that never answers degrades to periodic polls instead of a
// flood, and a hub that answers gets prompt service again.
//
// Nothing here may kill a worker: malformed payloads are dropped with a
// log entry, and registry anomalies self-heal through re-sync.
package coordinator
