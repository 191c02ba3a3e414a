package budget

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pithecene-io/warden/types"
)

func newTestLedger(t *testing.T, budget types.ReadBudget, maxRead int64) *Ledger {
	t.Helper()
	return NewLedger(Config{
		StateDir:     t.TempDir(),
		Budget:       budget,
		MaxReadBytes: maxRead,
	})
}

func TestCharge_SingleReadCeiling(t *testing.T) {
	l := newTestLedger(t, types.ReadBudget{MaxTotalBytes: 100000}, 1000)

	err := l.Charge("run-1", "/tmp/big.txt", 1500)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected budget denial, got %v", err)
	}
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected *ExceededError, got %T", err)
	}
	if exceeded.Reason != DenySingleRead {
		t.Errorf("reason = %s, want %s", exceeded.Reason, DenySingleRead)
	}

	// Denied before any mutation: state stays zero.
	state, err := l.Snapshot("run-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if state.TotalBytes != 0 || state.UniqueFiles() != 0 {
		t.Errorf("state mutated by denied charge: %+v", state)
	}
}

func TestCharge_UniqueFileLimit(t *testing.T) {
	l := newTestLedger(t, types.ReadBudget{MaxFiles: 2}, 0)

	if err := l.Charge("run-1", "/p/a.txt", 10); err != nil {
		t.Fatalf("a.txt: %v", err)
	}
	if err := l.Charge("run-1", "/p/b.txt", 10); err != nil {
		t.Fatalf("b.txt: %v", err)
	}

	err := l.Charge("run-1", "/p/c.txt", 10)
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) || exceeded.Reason != DenyUniqueFileLimit {
		t.Fatalf("c.txt: expected unique-file denial, got %v", err)
	}

	// Re-reading an already-charged file consumes no new slot.
	if err := l.Charge("run-1", "/p/a.txt", 10); err != nil {
		t.Fatalf("re-read a.txt: %v", err)
	}

	state, _ := l.Snapshot("run-1")
	if state.UniqueFiles() != 2 {
		t.Errorf("unique files = %d, want 2", state.UniqueFiles())
	}
	if state.TotalBytes != 30 {
		t.Errorf("total bytes = %d, want 30 (bytes charged on every read)", state.TotalBytes)
	}
}

func TestCharge_TotalBytesCeiling(t *testing.T) {
	l := newTestLedger(t, types.ReadBudget{MaxTotalBytes: 100}, 0)

	if err := l.Charge("run-1", "/p/a.txt", 60); err != nil {
		t.Fatalf("first charge: %v", err)
	}

	err := l.Charge("run-1", "/p/b.txt", 50)
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) || exceeded.Reason != DenyTotalBytes {
		t.Fatalf("expected total-bytes denial, got %v", err)
	}

	// Denial left the ledger where it was, so a fitting read still passes.
	if err := l.Charge("run-1", "/p/b.txt", 40); err != nil {
		t.Fatalf("fitting charge after denial: %v", err)
	}
	state, _ := l.Snapshot("run-1")
	if state.TotalBytes != 100 {
		t.Errorf("total bytes = %d, want 100", state.TotalBytes)
	}
}

func TestCharge_DeniedChargeLeavesStateBytesIdentical(t *testing.T) {
	dir := t.TempDir()
	l := NewLedger(Config{StateDir: dir, Budget: types.ReadBudget{MaxFiles: 1}})

	if err := l.Charge("run-1", "/p/a.txt", 10); err != nil {
		t.Fatalf("first charge: %v", err)
	}
	before, err := os.ReadFile(filepath.Join(dir, "run-1.budget"))
	if err != nil {
		t.Fatalf("read state: %v", err)
	}

	if err := l.Charge("run-1", "/p/b.txt", 10); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected denial, got %v", err)
	}

	after, err := os.ReadFile(filepath.Join(dir, "run-1.budget"))
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if string(before) != string(after) {
		t.Error("denied charge mutated persisted state")
	}
}

func TestCharge_UnlimitedBudgetIsNoOp(t *testing.T) {
	dir := t.TempDir()
	l := NewLedger(Config{StateDir: dir, Budget: types.ReadBudget{}})

	if err := l.Charge("run-1", "/p/a.txt", 1<<30); err != nil {
		t.Fatalf("Charge: %v", err)
	}

	// No state file is created when nothing is enforced.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty state dir, found %d entries", len(entries))
	}
}

func TestCharge_PersistsAcrossLedgerInstances(t *testing.T) {
	dir := t.TempDir()
	budget := types.ReadBudget{MaxTotalBytes: 100}

	first := NewLedger(Config{StateDir: dir, Budget: budget})
	if err := first.Charge("run-1", "/p/a.txt", 80); err != nil {
		t.Fatalf("first process charge: %v", err)
	}

	// A second process over the same state dir sees the accumulated total.
	second := NewLedger(Config{StateDir: dir, Budget: budget})
	if err := second.Charge("run-1", "/p/b.txt", 30); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected denial in second process, got %v", err)
	}
}

func TestCharge_ConcurrentChargesSerialize(t *testing.T) {
	l := newTestLedger(t, types.ReadBudget{MaxTotalBytes: 1 << 40}, 0)

	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				errs <- l.Charge("run-1", fmt.Sprintf("/p/w%d-%d.txt", w, i), 100)
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent charge: %v", err)
		}
	}

	state, err := l.Snapshot("run-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if state.TotalBytes != int64(workers*perWorker*100) {
		t.Errorf("total bytes = %d, want %d", state.TotalBytes, workers*perWorker*100)
	}
	if state.UniqueFiles() != workers*perWorker {
		t.Errorf("unique files = %d, want %d", state.UniqueFiles(), workers*perWorker)
	}
}

func TestReset_RemovesState(t *testing.T) {
	l := newTestLedger(t, types.ReadBudget{MaxFiles: 5}, 0)

	if err := l.Charge("run-1", "/p/a.txt", 10); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if err := l.Reset("run-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	state, err := l.Snapshot("run-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if state.TotalBytes != 0 || state.UniqueFiles() != 0 {
		t.Errorf("state survived reset: %+v", state)
	}

	// Resetting a missing record is not an error.
	if err := l.Reset("run-1"); err != nil {
		t.Errorf("second Reset: %v", err)
	}
}

func TestRunKey(t *testing.T) {
	tests := []struct {
		name  string
		runID string
		cwd   string
		want  string
	}{
		{"run id wins", "run-20260823-abc", "/home/x", "run-20260823-abc"},
		{"run id sanitized", "run/2026:a", "", "run_2026_a"},
		{"cwd fallback", "", "/home/user/proj", "cwd-_home_user_proj"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RunKey(tt.runID, tt.cwd); got != tt.want {
				t.Errorf("RunKey(%q, %q) = %q, want %q", tt.runID, tt.cwd, got, tt.want)
			}
		})
	}
}
