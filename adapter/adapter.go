// Package adapter defines the notification boundary for finished runs.
//
// Adapters publish run-finalized events to downstream systems (dashboards,
// chat hooks) so viewers can refresh without polling the run ledger. The
// CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/warden/types"
)

// RunFinalizedEvent is the payload published when a run reaches a terminal
// status. It carries pointers only, never artifact content.
type RunFinalizedEvent struct {
	EventType    string `json:"event_type"` // always "run_finalized"
	RunID        string `json:"run_id"`
	Subsystem    string `json:"subsystem"`
	Phase        string `json:"phase"`
	ParentRunID  string `json:"parent_run_id,omitempty"`
	Status       string `json:"status"`
	CapsulePath  string `json:"capsule_path,omitempty"`
	ManifestPath string `json:"manifest_path,omitempty"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at,omitempty"`
	Host         string `json:"host,omitempty"`
}

// FromRunMeta builds the event payload from a finalized run record.
func FromRunMeta(meta *types.RunMeta) *RunFinalizedEvent {
	event := &RunFinalizedEvent{
		EventType:    "run_finalized",
		RunID:        meta.RunID,
		Subsystem:    meta.Subsystem,
		Phase:        meta.Phase,
		Status:       string(meta.Status),
		CapsulePath:  meta.CapsulePath,
		ManifestPath: meta.ManifestPath,
		StartedAt:    meta.StartedAt,
		Host:         meta.Host,
	}
	if meta.ParentRunID != nil {
		event.ParentRunID = *meta.ParentRunID
	}
	if meta.FinishedAt != nil {
		event.FinishedAt = *meta.FinishedAt
	}
	return event
}

// Adapter publishes run-finalized events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends one event downstream. Must respect context
	// cancellation and deadlines.
	Publish(ctx context.Context, event *RunFinalizedEvent) error

	// Close releases adapter resources.
	Close() error
}

// permanentError marks a delivery failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps a delivery error so Deliver stops retrying it
// (e.g. an HTTP 4xx: the request itself is wrong).
func Permanent(err error) error {
	return &permanentError{err: err}
}

// Deliver runs send up to attempts times with exponential backoff between
// tries (500ms doubling). It stops early on success, on a Permanent error,
// or when the context ends during backoff.
func Deliver(ctx context.Context, attempts int, send func(context.Context) error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			delay := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("canceled during backoff: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = send(ctx)
		if lastErr == nil {
			return nil
		}
		var permanent *permanentError
		if errors.As(lastErr, &permanent) {
			return fmt.Errorf("non-retriable: %w", permanent.err)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
