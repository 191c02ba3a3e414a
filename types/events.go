package types

// EventType discriminates entries in a run's append-only event stream.
type EventType string

const (
	// EventRunCreated is emitted once when the run ledger allocates a run.
	EventRunCreated EventType = "run_created"
	// EventBudgetDenied is emitted when the guardrail denies a read charge.
	EventBudgetDenied EventType = "budget_denied"
	// EventGuardBlocked is emitted when the guardrail blocks a write or
	// shell tool call.
	EventGuardBlocked EventType = "guard_blocked"
	// EventRequestCreated is emitted when an interop request is persisted
	// under the run.
	EventRequestCreated EventType = "request_created"
	// EventResponseWritten is emitted when a response answering one of the
	// run's requests is persisted.
	EventResponseWritten EventType = "response_written"
	// EventRunFinalized is emitted once when the run reaches a terminal
	// status. It is the last entry in the stream.
	EventRunFinalized EventType = "run_finalized"
)

// IsTerminal returns true if this event type closes the stream.
func (e EventType) IsTerminal() bool {
	return e == EventRunFinalized
}

// Event is one entry in runs/<run_id>/events.jsonl. The stream is
// append-only, one JSON object per line, readable by the dashboard indexer
// without loading any other run artifact.
type Event struct {
	// RunID is the owning run.
	RunID string `json:"run_id"`
	// Seq is the monotonic sequence number within the stream, starts at 1.
	Seq int64 `json:"seq"`
	// Type is the event discriminator.
	Type EventType `json:"type"`
	// Ts is the event timestamp in ISO 8601 UTC.
	Ts string `json:"ts"`
	// Payload is the type-specific payload.
	Payload map[string]any `json:"payload,omitempty"`
}
