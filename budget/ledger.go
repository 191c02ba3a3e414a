// Package budget implements the per-run read-budget ledger.
//
// The ledger tracks, per run, the set of distinct files already charged and
// the cumulative bytes charged. State is a small msgpack record on disk,
// keyed by run, guarded by a lock file so concurrent tool calls in the same
// run serialize their charge operations. A denied charge never mutates
// state: the record after a denial equals the record before the attempt.
package budget

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/types"
)

// DenyReason is the machine-readable reason code attached to a denial.
type DenyReason string

const (
	// DenyUniqueFileLimit: charging this path would exceed max_files
	// distinct paths for the run.
	DenyUniqueFileLimit DenyReason = "unique-file-limit-exceeded"
	// DenyTotalBytes: the cumulative byte total would exceed
	// max_total_bytes.
	DenyTotalBytes DenyReason = "total-bytes-exceeded"
	// DenySingleRead: one read larger than the hard per-read ceiling.
	// Checked before any ledger mutation; an oversized read is never
	// partially charged.
	DenySingleRead DenyReason = "single-read-limit-exceeded"
)

// ErrBudgetExceeded is the sentinel for all budget denials.
// Use errors.Is(err, ErrBudgetExceeded) to detect a denial and errors.As
// with *ExceededError to read the reason code.
var ErrBudgetExceeded = errors.New("read budget exceeded")

// ExceededError carries the denial detail for one rejected charge.
type ExceededError struct {
	Reason    DenyReason
	Path      string
	Limit     int64
	Attempted int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: %s (limit %d, attempted %d)", e.Reason, e.Path, e.Limit, e.Attempted)
}

// Is reports a match against the ErrBudgetExceeded sentinel.
func (e *ExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// State is the persisted ledger record for one run. Counters are
// monotonically non-decreasing for the life of the run and are destroyed
// with the run's temporary state storage, not archived with the run.
type State struct {
	// Files are the distinct absolute paths already charged, sorted.
	Files []string `msgpack:"files"`
	// TotalBytes is the cumulative bytes charged. Bytes are charged on
	// every read; the unique-file slot only once per path.
	TotalBytes int64 `msgpack:"total_bytes"`
}

// UniqueFiles returns the number of distinct files charged.
func (s *State) UniqueFiles() int { return len(s.Files) }

func (s *State) hasFile(path string) bool {
	i := sort.SearchStrings(s.Files, path)
	return i < len(s.Files) && s.Files[i] == path
}

func (s *State) addFile(path string) {
	i := sort.SearchStrings(s.Files, path)
	if i < len(s.Files) && s.Files[i] == path {
		return
	}
	s.Files = append(s.Files, "")
	copy(s.Files[i+1:], s.Files[i:])
	s.Files[i] = path
}

// Config configures a Ledger.
type Config struct {
	// StateDir is the directory holding per-run state and lock files.
	StateDir string
	// Budget holds the cumulative ceilings for the run. When both are
	// unset the ledger is a no-op that still permits every charge.
	Budget types.ReadBudget
	// MaxReadBytes is the hard per-read ceiling. 0 = unlimited.
	MaxReadBytes int64
}

// Ledger charges reads against a run's budget.
// Safe for concurrent use across goroutines and processes: every charge is
// one exclusive read-modify-write section against the state record.
type Ledger struct {
	config Config
}

// NewLedger creates a ledger over the given state directory.
func NewLedger(config Config) *Ledger {
	return &Ledger{config: config}
}

// runKeyPattern strips characters that cannot appear in a state file name.
var runKeyPattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// RunKey derives the ledger key for a run. When no run is active the
// working directory serves as the fallback key, so budget state still
// accumulates per project.
func RunKey(runID, cwd string) string {
	if runID != "" {
		return runKeyPattern.ReplaceAllString(runID, "_")
	}
	return "cwd-" + runKeyPattern.ReplaceAllString(filepath.ToSlash(cwd), "_")
}

// Charge records a read of size bytes against the run's budget.
//
// Returns nil when the read is permitted. Returns an *ExceededError
// (matching ErrBudgetExceeded) when the read would break a ceiling; a
// denied charge leaves the persisted state untouched.
func (l *Ledger) Charge(runKey, path string, size int64) error {
	if size < 0 {
		return fmt.Errorf("negative read size %d for %s", size, path)
	}

	// Per-read ceiling applies before any state is touched.
	if l.config.MaxReadBytes > 0 && size > l.config.MaxReadBytes {
		return &ExceededError{
			Reason:    DenySingleRead,
			Path:      path,
			Limit:     l.config.MaxReadBytes,
			Attempted: size,
		}
	}

	if l.config.Budget.Unlimited() {
		return nil
	}

	if err := os.MkdirAll(l.config.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	lock, err := iox.AcquireLock(l.lockPath(runKey))
	if err != nil {
		return err
	}
	defer lock.Release()

	state, err := l.loadState(runKey)
	if err != nil {
		return err
	}

	newFile := !state.hasFile(path)
	if newFile && l.config.Budget.MaxFiles > 0 && state.UniqueFiles()+1 > l.config.Budget.MaxFiles {
		return &ExceededError{
			Reason:    DenyUniqueFileLimit,
			Path:      path,
			Limit:     int64(l.config.Budget.MaxFiles),
			Attempted: int64(state.UniqueFiles() + 1),
		}
	}
	if l.config.Budget.MaxTotalBytes > 0 && state.TotalBytes+size > l.config.Budget.MaxTotalBytes {
		return &ExceededError{
			Reason:    DenyTotalBytes,
			Path:      path,
			Limit:     l.config.Budget.MaxTotalBytes,
			Attempted: state.TotalBytes + size,
		}
	}

	if newFile {
		state.addFile(path)
	}
	state.TotalBytes += size
	return l.saveState(runKey, state)
}

// Snapshot returns the current state record for a run without mutating it.
// A missing record reads as the zero state.
func (l *Ledger) Snapshot(runKey string) (*State, error) {
	if err := os.MkdirAll(l.config.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	lock, err := iox.AcquireLock(l.lockPath(runKey))
	if err != nil {
		return nil, err
	}
	defer lock.Release()
	return l.loadState(runKey)
}

// Reset removes a run's state record. Called when the run's temporary
// state storage is destroyed.
func (l *Ledger) Reset(runKey string) error {
	if err := os.MkdirAll(l.config.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	lock, err := iox.AcquireLock(l.lockPath(runKey))
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := os.Remove(l.statePath(runKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove budget state %s: %w", runKey, err)
	}
	return nil
}

func (l *Ledger) statePath(runKey string) string {
	return filepath.Join(l.config.StateDir, runKey+".budget")
}

func (l *Ledger) lockPath(runKey string) string {
	return filepath.Join(l.config.StateDir, runKey+".lock")
}

// loadState reads the msgpack state record, returning the zero state when
// the record does not exist yet.
func (l *Ledger) loadState(runKey string) (*State, error) {
	data, err := os.ReadFile(l.statePath(runKey))
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read budget state %s: %w", runKey, err)
	}

	var state State
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode budget state %s: %w", runKey, err)
	}
	return &state, nil
}

// saveState persists the state record. Written atomically so a reader
// racing the rename sees a complete record.
func (l *Ledger) saveState(runKey string, state *State) error {
	data, err := msgpack.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode budget state %s: %w", runKey, err)
	}
	return iox.AtomicWrite(l.statePath(runKey), data, 0o644)
}
