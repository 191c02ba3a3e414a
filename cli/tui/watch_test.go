package tui

import (
	"strings"
	"testing"

	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

func TestWatchModel_View(t *testing.T) {
	root := t.TempDir()
	ledger := runledger.New(root)
	meta, err := ledger.Create("tdd", "implement", nil)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := runledger.AppendEvent(meta.EventsPath, meta.RunID, types.EventGuardBlocked,
		map[string]any{"target": "spec/x.md"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	model := NewWatchModel(WatchParams{Root: root, RunID: meta.RunID})
	msg, ok := model.refresh().(refreshMsg)
	if !ok {
		t.Fatal("refresh did not return refreshMsg")
	}
	if msg.err != nil {
		t.Fatalf("refresh: %v", msg.err)
	}
	model.meta = msg.meta
	model.events = msg.events

	view := model.View()
	if !strings.Contains(view, meta.RunID) {
		t.Errorf("view missing run id:\n%s", view)
	}
	if !strings.Contains(view, "implement") {
		t.Errorf("view missing phase:\n%s", view)
	}
	if !strings.Contains(view, string(types.EventRunCreated)) {
		t.Errorf("view missing run_created event:\n%s", view)
	}
	if !strings.Contains(view, string(types.EventGuardBlocked)) {
		t.Errorf("view missing guard_blocked event:\n%s", view)
	}
}

func TestWatchModel_ViewWithMissingRun(t *testing.T) {
	model := NewWatchModel(WatchParams{Root: t.TempDir(), RunID: "run-missing"})
	msg, ok := model.refresh().(refreshMsg)
	if !ok {
		t.Fatal("refresh did not return refreshMsg")
	}
	if msg.err == nil {
		t.Fatal("expected error for missing run")
	}
	model.err = msg.err

	// The view must render the error, not panic on nil meta.
	view := model.View()
	if !strings.Contains(view, "error") {
		t.Errorf("view should surface the load error:\n%s", view)
	}
}

func TestStateStyle(t *testing.T) {
	// Terminal failure states share the error style; success and progress
	// each get their own.
	if StateStyle("failed").GetForeground() != StateStyle("blocked").GetForeground() {
		t.Error("failed and blocked should share a style")
	}
	if StateStyle("ok").GetForeground() == StateStyle("in-progress").GetForeground() {
		t.Error("ok and in-progress should differ")
	}
}
