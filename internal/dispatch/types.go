package dispatch

import "time"

// CommandStatus is the lifecycle state of a dispatched command.
//
// State machine: Pending -> (Acked | Failed | TimedOut), all terminal.
// A retry is Pending -> Pending with a decremented retry count; no
// transition ever leaves a terminal state.
type CommandStatus string

// Command statuses.
const (
	StatusPending  CommandStatus = "pending"
	StatusAcked    CommandStatus = "acked"
	StatusFailed   CommandStatus = "failed"
	StatusTimedOut CommandStatus = "timed_out"
)

// Terminal reports whether the status admits no further transitions.
func (s CommandStatus) Terminal() bool {
	return s == StatusAcked || s == StatusFailed || s == StatusTimedOut
}

// Outcome classifies how an inbound acknowledgement correlated with the
// pending-command table.
type Outcome string

// Ack correlation outcomes.
const (
	// Matched: a Pending entry existed and transitioned to Acked or Failed.
	Matched Outcome = "matched"

	// DuplicateIgnored: the entry was already terminal. Redelivered and
	// late acks land here; the transport is at-least-once, so this is
	// routine, not an anomaly.
	DuplicateIgnored Outcome = "duplicate_ignored"

	// UnknownCommand: no entry for (hub_id, command_id). Logged and
	// dropped; correlation state is not durable across restarts, so
	// this is never treated as a protocol violation.
	UnknownCommand Outcome = "unknown_command"
)

// PendingCommand tracks one dispatched command awaiting acknowledgement.
//
// Correlation keys are (hub_id, command_id): two hubs may reuse the same
// command ID without collision.
type PendingCommand struct {
	CommandID   string        `json:"command_id"`
	HubID       string        `json:"hub_id"`
	Version     int           `json:"version"`
	CommandName string        `json:"command_name"`
	Topic       string        `json:"topic"`
	Payload     []byte        `json:"-"`
	IssuedAt    time.Time     `json:"issued_at"`
	TimeoutAt   time.Time     `json:"timeout_at"`
	Timeout     time.Duration `json:"timeout"`

	// RetriesRemaining counts re-dispatches still allowed on silence.
	// Explicit error acks are final and never retried.
	RetriesRemaining int `json:"retries_remaining"`

	Status CommandStatus `json:"status"`

	// Detail carries the ack's detail string for Acked/Failed entries.
	Detail string `json:"detail,omitempty"`

	// CompletedAt is set on transition to a terminal status. Terminal
	// entries linger for a grace window so redelivered acks correlate
	// as DuplicateIgnored instead of UnknownCommand.
	CompletedAt time.Time `json:"completed_at,omitempty"`
}
