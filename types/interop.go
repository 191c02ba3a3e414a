package types

import (
	"errors"
	"fmt"
)

// RequestPriority orders pump queue processing.
type RequestPriority string

const (
	PriorityLow    RequestPriority = "low"
	PriorityNormal RequestPriority = "normal"
	PriorityHigh   RequestPriority = "high"
)

// Valid returns true for a recognized priority value.
func (p RequestPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// InteropRequest is the handoff contract between phases, possibly across
// subsystems. Requests are immutable once persisted; superseding a request
// requires creating a new one.
type InteropRequest struct {
	// RequestID is the canonical request identifier (rq-<ts>-<hex>).
	RequestID string `json:"request_id"`
	// FromSubsystem is the requesting subsystem.
	FromSubsystem string `json:"from_subsystem"`
	// FromPhase is the requesting phase. May be empty; the router then
	// infers it from the parent run's recorded phase.
	FromPhase string `json:"from_phase,omitempty"`
	// ToSubsystem is the target subsystem. Any subsystem may target any
	// other, including one that closes a cycle back to an ancestor.
	ToSubsystem string `json:"to_subsystem"`
	// Action is the target action, normally "<subsystem>.<phase>".
	Action string `json:"action"`
	// Args is the argument payload passed to the target phase.
	Args []string `json:"args,omitempty"`
	// ParentRunID is the run on whose behalf the request was created.
	ParentRunID string `json:"parent_run_id"`
	// MustRead is the pointer set the receiving phase is expected to read.
	MustRead []string `json:"must_read,omitempty"`
	// ReadBudget is the declared ceiling on what the receiving phase may
	// read. The stricter of this and the target phase default applies.
	ReadBudget ReadBudget `json:"read_budget"`
	// ExpectedDeliverables are glob patterns the response should satisfy.
	ExpectedDeliverables []string `json:"expected_deliverables,omitempty"`
	// Priority orders queue processing. Defaults to normal.
	Priority RequestPriority `json:"priority,omitempty"`
	// Reasoning is an optional justification recorded for the dashboard.
	Reasoning string `json:"reasoning,omitempty"`
	// EnqueuedAt is the creation timestamp in ISO 8601 UTC.
	EnqueuedAt string `json:"enqueued_at"`
}

// Validate validates request invariants before persistence.
func (r *InteropRequest) Validate() error {
	if r.RequestID == "" {
		return errors.New("request_id must be non-empty")
	}
	if r.FromSubsystem == "" {
		return errors.New("from_subsystem must be non-empty")
	}
	if r.ToSubsystem == "" {
		return errors.New("to_subsystem must be non-empty")
	}
	if r.Action == "" {
		return errors.New("action must be non-empty")
	}
	if r.ParentRunID == "" {
		return errors.New("parent_run_id must be non-empty")
	}
	if r.Priority != "" && !r.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", r.Priority)
	}
	if err := r.ReadBudget.Validate(); err != nil {
		return fmt.Errorf("invalid read_budget: %w", err)
	}
	return nil
}

// ResponseStatus is the outcome of an interop dispatch.
type ResponseStatus string

const (
	ResponseOK     ResponseStatus = "ok"
	ResponseFailed ResponseStatus = "failed"
	// ResponseBlocked indicates the request could not be routed or the
	// target phase could not proceed. Blocked is a response, not a crash.
	ResponseBlocked ResponseStatus = "blocked"
)

// Valid returns true for a recognized response status.
func (s ResponseStatus) Valid() bool {
	switch s {
	case ResponseOK, ResponseFailed, ResponseBlocked:
		return true
	}
	return false
}

// InteropResponse answers an InteropRequest. Written exactly once, keyed
// by the same request_id; a second dispatch of an answered request is
// rejected.
type InteropResponse struct {
	RequestID string `json:"request_id"`
	// Status classifies the dispatch outcome.
	Status ResponseStatus `json:"status"`
	// RunID is the child run that executed the request. Empty when the
	// request was blocked before a child run was created.
	RunID string `json:"run_id,omitempty"`
	// CapsulePath points to the child run's capsule.
	CapsulePath string `json:"capsule_path,omitempty"`
	// ManifestPath points to the child run's manifest.
	ManifestPath string `json:"manifest_path,omitempty"`
	// Deliverables are the paths produced for the requester.
	Deliverables []string `json:"deliverables,omitempty"`
	// Notes carries short free-text context (one line, not a transcript).
	Notes string `json:"notes,omitempty"`
	// CompletedAt is the response timestamp in ISO 8601 UTC.
	CompletedAt string `json:"completed_at"`
}

// Validate validates response invariants before persistence.
func (r *InteropResponse) Validate() error {
	if r.RequestID == "" {
		return errors.New("request_id must be non-empty")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid response status %q", r.Status)
	}
	if r.Status == ResponseOK && r.RunID == "" {
		return errors.New("ok response must carry a run_id")
	}
	return nil
}
