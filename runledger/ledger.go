// Package runledger owns the per-run record tree under <root>/runs: the
// run.json identity record, the append-only events.jsonl stream, and the
// write-once capsule and manifest artifacts.
package runledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/types"
)

// Ledger creates and finalizes run records under one orchestration root.
type Ledger struct {
	root string
	// agentRuntime labels runs created through this ledger.
	agentRuntime string
}

// New creates a ledger rooted at root. Runs live under <root>/runs.
func New(root string) *Ledger {
	return &Ledger{root: root}
}

// WithAgentRuntime returns a ledger that stamps new runs with the given
// agent runtime label.
func (l *Ledger) WithAgentRuntime(label string) *Ledger {
	out := *l
	out.agentRuntime = label
	return &out
}

// Root returns the orchestration root this ledger operates on.
func (l *Ledger) Root() string { return l.root }

// RunsDir returns the directory holding all run records.
func (l *Ledger) RunsDir() string { return filepath.Join(l.root, "runs") }

// RunDir returns the directory for one run.
func (l *Ledger) RunDir(runID string) string {
	return filepath.Join(l.RunsDir(), runID)
}

// NewRunID produces a collision-free, time-ordered run identifier.
func NewRunID() string {
	ts := time.Now().UTC().Format("20060102T150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("run-%s-%s", ts, suffix)
}

// Create allocates a run record. Parent linkage is recorded in run.json
// before any artifact exists, so a reader can always resolve the run tree
// bottom-up. The run starts in-progress and owns its record until terminal.
func (l *Ledger) Create(subsystem, phase string, parentRunID *string) (*types.RunMeta, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	runID := NewRunID()
	runDir := l.RunDir(runID)
	meta := &types.RunMeta{
		RunID:        runID,
		Subsystem:    subsystem,
		Phase:        phase,
		ParentRunID:  parentRunID,
		Host:         host,
		PID:          os.Getpid(),
		AgentRuntime: l.agentRuntime,
		StartedAt:    types.NowUTC(),
		Status:       types.RunStatusInProgress,
		LogPath:      filepath.Join(runDir, "logs", phase+".log"),
		EventsPath:   filepath.Join(runDir, "events.jsonl"),
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	for _, sub := range []string{"capsules", "manifests", "logs"} {
		if err := os.MkdirAll(filepath.Join(runDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create run dir %s: %w", runDir, err)
		}
	}
	if err := l.save(meta); err != nil {
		return nil, err
	}

	payload := map[string]any{"subsystem": subsystem, "phase": phase}
	if parentRunID != nil {
		payload["parent_run_id"] = *parentRunID
	}
	if err := AppendEvent(meta.EventsPath, runID, types.EventRunCreated, payload); err != nil {
		return nil, err
	}
	return meta, nil
}

// Load reads a run record by id.
func (l *Ledger) Load(runID string) (*types.RunMeta, error) {
	data, err := os.ReadFile(l.metaPath(runID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("read run record %s: %w", runID, err)
	}
	var meta types.RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode run record %s: %w", runID, err)
	}
	return &meta, nil
}

// Update persists artifact pointers onto an in-progress run record.
// Terminal records are immutable.
func (l *Ledger) Update(meta *types.RunMeta) error {
	current, err := l.Load(meta.RunID)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return &AlreadyFinalizedError{RunID: meta.RunID, Current: current.Status, Requested: meta.Status}
	}
	return l.save(meta)
}

// Finalize moves a run to a terminal status. Idempotent for the same
// status; a different status after terminal is an error.
func (l *Ledger) Finalize(runID string, status types.RunStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q", status)
	}

	meta, err := l.Load(runID)
	if err != nil {
		return err
	}
	if meta.Status.Terminal() {
		if meta.Status == status {
			return nil
		}
		return &AlreadyFinalizedError{RunID: runID, Current: meta.Status, Requested: status}
	}

	now := types.NowUTC()
	meta.Status = status
	meta.FinishedAt = &now
	if err := l.save(meta); err != nil {
		return err
	}
	return AppendEvent(meta.EventsPath, runID, types.EventRunFinalized,
		map[string]any{"status": string(status)})
}

// List returns all run records under the root, sorted by run id (which is
// time-ordered by construction).
func (l *Ledger) List() ([]*types.RunMeta, error) {
	entries, err := os.ReadDir(l.RunsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	var runs []*types.RunMeta
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := l.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })
	return runs, nil
}

// Thread returns a run and its ancestors, child first, by following
// parent pointers. A dangling parent pointer ends the thread.
func (l *Ledger) Thread(runID string) ([]*types.RunMeta, error) {
	var thread []*types.RunMeta
	id := runID
	for id != "" {
		meta, err := l.Load(id)
		if err != nil {
			if len(thread) > 0 {
				break
			}
			return nil, err
		}
		thread = append(thread, meta)
		if meta.ParentRunID == nil {
			break
		}
		id = *meta.ParentRunID
	}
	return thread, nil
}

// Orphaned reports whether a run looks abandoned: still in-progress while
// its owning process no longer exists on this host. Runs owned by another
// host are never reported (liveness cannot be checked remotely). Orphans
// are reported, never auto-resolved to a terminal status.
func Orphaned(meta *types.RunMeta) bool {
	if meta.Status.Terminal() {
		return false
	}
	host, err := os.Hostname()
	if err != nil || meta.Host != host {
		return false
	}
	proc, err := os.FindProcess(meta.PID)
	if err != nil {
		return true
	}
	return proc.Signal(syscall.Signal(0)) != nil
}

func (l *Ledger) metaPath(runID string) string {
	return filepath.Join(l.RunDir(runID), "run.json")
}

func (l *Ledger) save(meta *types.RunMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run record %s: %w", meta.RunID, err)
	}
	return iox.AtomicWrite(l.metaPath(meta.RunID), append(data, '\n'), 0o644)
}
