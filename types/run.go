// Package types defines core domain types for the Warden orchestration kit.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"time"
)

// RunStatus represents the lifecycle status of a run.
type RunStatus string

const (
	// RunStatusInProgress indicates the run has been created and not finalized.
	RunStatusInProgress RunStatus = "in-progress"
	// RunStatusOK indicates the phase completed successfully.
	RunStatusOK RunStatus = "ok"
	// RunStatusFailed indicates the phase completed with a failure.
	RunStatusFailed RunStatus = "failed"
	// RunStatusBlocked indicates the phase could not proceed (routing or
	// budget preconditions unmet).
	RunStatusBlocked RunStatus = "blocked"
)

// Terminal returns true if the status is a terminal status.
// A run with a terminal status is immutable.
func (s RunStatus) Terminal() bool {
	return s == RunStatusOK || s == RunStatusFailed || s == RunStatusBlocked
}

// Valid returns true for a recognized status value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusInProgress, RunStatusOK, RunStatusFailed, RunStatusBlocked:
		return true
	}
	return false
}

// RunMeta contains run identity, lineage, and process identity.
// One RunMeta is persisted per run as runs/<run_id>/run.json and is the
// root record that capsule, manifest, log, and events pointers attach to.
type RunMeta struct {
	// RunID is the canonical run identifier. Must be globally unique.
	RunID string `json:"run_id"`
	// Subsystem is the owning subsystem name (e.g. "tdd", "research").
	Subsystem string `json:"subsystem"`
	// Phase is the phase name within the subsystem (e.g. "implement").
	Phase string `json:"phase"`
	// ParentRunID links child runs to the run that requested them.
	// Nil for root runs. Parent linkage forms a tree, never a DAG.
	ParentRunID *string `json:"parent_run_id,omitempty"`
	// Host is the hostname of the process that created the run.
	Host string `json:"host"`
	// PID is the process id of the run owner. Used for orphan detection.
	PID int `json:"pid"`
	// AgentRuntime labels the agent runtime executing the phase.
	AgentRuntime string `json:"agent_runtime,omitempty"`
	// StartedAt is the creation timestamp in ISO 8601 UTC.
	StartedAt string `json:"started_at"`
	// FinishedAt is the finalization timestamp. Nil while in progress.
	FinishedAt *string `json:"finished_at,omitempty"`
	// Status is the current lifecycle status.
	Status RunStatus `json:"status"`
	// CapsulePath points to the phase capsule, relative to the kit root.
	// Empty until the capsule is written.
	CapsulePath string `json:"capsule_path,omitempty"`
	// ManifestPath points to the phase manifest, relative to the kit root.
	ManifestPath string `json:"manifest_path,omitempty"`
	// LogPath points to the raw phase log, relative to the kit root.
	LogPath string `json:"log_path,omitempty"`
	// EventsPath points to the append-only event stream for the run.
	EventsPath string `json:"events_path,omitempty"`
	// Reasoning is an optional 1-3 sentence justification for the dispatch.
	Reasoning string `json:"reasoning,omitempty"`
}

// Validate validates run identity rules:
//   - run_id, subsystem, and phase must be non-empty
//   - status must be a recognized value
//   - parent_run_id, when present, must be non-empty
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	if r.Subsystem == "" {
		return errors.New("subsystem must be non-empty")
	}
	if r.Phase == "" {
		return errors.New("phase must be non-empty")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid run status %q", r.Status)
	}
	if r.ParentRunID != nil && *r.ParentRunID == "" {
		return errors.New("parent_run_id must be non-empty when present")
	}
	return nil
}

// NowUTC returns the current time in ISO 8601 UTC with second precision,
// the timestamp format used across all persisted records.
func NowUTC() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}
