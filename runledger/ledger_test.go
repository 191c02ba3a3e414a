package runledger

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pithecene-io/warden/types"
)

func TestCreate_AllocatesRunWithLineage(t *testing.T) {
	l := New(t.TempDir())

	parent, err := l.Create("tdd", "write-tests", nil)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := l.Create("tdd", "implement", &parent.RunID)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	if child.ParentRunID == nil || *child.ParentRunID != parent.RunID {
		t.Errorf("child parent = %v, want %s", child.ParentRunID, parent.RunID)
	}
	if child.Status != types.RunStatusInProgress {
		t.Errorf("status = %s, want in-progress", child.Status)
	}
	if child.PID == 0 || child.Host == "" {
		t.Errorf("process identity missing: pid=%d host=%q", child.PID, child.Host)
	}

	// Parent linkage is on disk before any artifact: a fresh load sees it.
	loaded, err := l.Load(child.RunID)
	if err != nil {
		t.Fatalf("load child: %v", err)
	}
	if loaded.ParentRunID == nil || *loaded.ParentRunID != parent.RunID {
		t.Error("parent linkage not persisted at create time")
	}

	events, err := ReadEvents(loaded.EventsPath)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(events) != 1 || events[0].Type != types.EventRunCreated {
		t.Errorf("expected single run_created event, got %v", events)
	}
}

func TestNewRunID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRunID()
		if seen[id] {
			t.Fatalf("duplicate run id %s", id)
		}
		seen[id] = true
		if !strings.HasPrefix(id, "run-") {
			t.Fatalf("unexpected id shape %s", id)
		}
	}
}

func TestFinalize_Idempotency(t *testing.T) {
	l := New(t.TempDir())
	meta, err := l.Create("tdd", "implement", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := l.Finalize(meta.RunID, types.RunStatusOK); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// Same status again: no-op.
	if err := l.Finalize(meta.RunID, types.RunStatusOK); err != nil {
		t.Errorf("re-finalize with same status: %v", err)
	}
	// Different status after terminal: already-finalized.
	err = l.Finalize(meta.RunID, types.RunStatusFailed)
	if !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("expected already-finalized, got %v", err)
	}

	loaded, _ := l.Load(meta.RunID)
	if loaded.Status != types.RunStatusOK {
		t.Errorf("status = %s, want ok", loaded.Status)
	}
	if loaded.FinishedAt == nil {
		t.Error("finished_at not set")
	}

	events, _ := ReadEvents(loaded.EventsPath)
	finalized := 0
	for _, event := range events {
		if event.Type == types.EventRunFinalized {
			finalized++
		}
	}
	if finalized != 1 {
		t.Errorf("run_finalized emitted %d times, want 1", finalized)
	}
}

func TestFinalize_RejectsNonTerminalStatus(t *testing.T) {
	l := New(t.TempDir())
	meta, _ := l.Create("tdd", "implement", nil)

	if err := l.Finalize(meta.RunID, types.RunStatusInProgress); err == nil {
		t.Error("expected error finalizing to in-progress")
	}
}

func TestLoad_NotFound(t *testing.T) {
	l := New(t.TempDir())
	if _, err := l.Load("run-missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestThread_FollowsParentPointers(t *testing.T) {
	l := New(t.TempDir())
	a, _ := l.Create("alpha", "plan", nil)
	b, _ := l.Create("beta", "implement", &a.RunID)
	c, _ := l.Create("gamma", "verify", &b.RunID)

	thread, err := l.Thread(c.RunID)
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if len(thread) != 3 {
		t.Fatalf("thread length = %d, want 3", len(thread))
	}
	want := []string{c.RunID, b.RunID, a.RunID}
	for i, meta := range thread {
		if meta.RunID != want[i] {
			t.Errorf("thread[%d] = %s, want %s", i, meta.RunID, want[i])
		}
	}
}

func TestOrphaned(t *testing.T) {
	l := New(t.TempDir())
	meta, _ := l.Create("tdd", "implement", nil)

	// Own live process: not orphaned.
	if Orphaned(meta) {
		t.Error("live run reported as orphan")
	}

	// Dead pid on this host: orphaned.
	dead := *meta
	dead.PID = 1 << 30
	if !Orphaned(&dead) {
		t.Error("dead-pid run not reported as orphan")
	}

	// Terminal runs are never orphans regardless of pid.
	if err := l.Finalize(meta.RunID, types.RunStatusOK); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	finalized, _ := l.Load(meta.RunID)
	finalized.PID = 1 << 30
	if Orphaned(finalized) {
		t.Error("terminal run reported as orphan")
	}

	// Foreign host: liveness unknowable, never reported.
	foreign := *meta
	foreign.Host = "some-other-host"
	foreign.PID = 1 << 30
	if Orphaned(&foreign) {
		t.Error("foreign-host run reported as orphan")
	}
}

func TestAppendEvent_SequenceIsMonotonic(t *testing.T) {
	l := New(t.TempDir())
	meta, _ := l.Create("tdd", "implement", nil)

	for _, et := range []types.EventType{types.EventBudgetDenied, types.EventRequestCreated} {
		if err := AppendEvent(meta.EventsPath, meta.RunID, et, nil); err != nil {
			t.Fatalf("append %s: %v", et, err)
		}
	}

	events, err := ReadEvents(meta.EventsPath)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	for i, event := range events {
		if event.Seq != int64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, event.Seq, i+1)
		}
	}
}

func TestAppendEvent_ConcurrentWritersMintUniqueSeq(t *testing.T) {
	l := New(t.TempDir())
	meta, _ := l.Create("tdd", "implement", nil)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := AppendEvent(meta.EventsPath, meta.RunID, types.EventRequestCreated, nil); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	events, err := ReadEvents(meta.EventsPath)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	// One run-created entry plus every concurrent append, each with its
	// own sequence number.
	if len(events) != writers+1 {
		t.Fatalf("event count = %d, want %d", len(events), writers+1)
	}
	seen := map[int64]bool{}
	for _, event := range events {
		if seen[event.Seq] {
			t.Errorf("duplicate seq %d", event.Seq)
		}
		seen[event.Seq] = true
	}
}
