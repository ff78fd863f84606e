// Package dispatch sends commands to hubs and correlates acknowledgements.
//
// Every dispatched command gets a generated command ID, a published payload,
// and a Pending entry in the dispatcher's table. Hubs reply on their ack
// topic; OnAck transitions the entry to Acked or Failed exactly once, with
// redeliveries and late acks reported as DuplicateIgnored. The periodic
// Sweep re-dispatches silent commands while retries remain and surfaces
// TimedOut entries to the caller.
//
// Two rules shape the design:
//
//   - An explicit error ack is authoritative and final. Retries exist for
//     silence only; retrying a command the hub has already rejected would
//     repeat whatever the hub objected to.
//   - Correlation state is in-memory only. After a restart, acks for
//     commands dispatched by the previous process correlate as
//     UnknownCommand and are logged, not errored; the pending table is
//     cheap to lose because every command is re-issuable.
package dispatch
