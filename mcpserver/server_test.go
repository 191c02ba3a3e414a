package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pithecene-io/warden/interop"
	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("content is not text: %T", result.Content[0])
	}
	return text.Text
}

func decodeResult(t *testing.T, result *mcp.CallToolResult, into any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("tool returned error: %s", textOf(t, result))
	}
	if err := json.Unmarshal([]byte(textOf(t, result)), into); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func TestRunTool_AllocatesRun(t *testing.T) {
	root := t.TempDir()
	ledger := runledger.New(root)
	tool := &RunTool{ledger: ledger}

	result, err := tool.Handle(t.Context(), callRequest("warden_run", map[string]any{
		"subsystem": "tdd",
		"phase":     "implement",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	var payload struct {
		RunID      string `json:"run_id"`
		EventsPath string `json:"events_path"`
		LogPath    string `json:"log_path"`
	}
	decodeResult(t, result, &payload)
	if payload.RunID == "" || payload.EventsPath == "" || payload.LogPath == "" {
		t.Fatalf("incomplete payload: %+v", payload)
	}

	meta, err := ledger.Load(payload.RunID)
	if err != nil {
		t.Fatalf("load allocated run: %v", err)
	}
	if meta.Subsystem != "tdd" || meta.Phase != "implement" {
		t.Errorf("run = %s/%s, want tdd/implement", meta.Subsystem, meta.Phase)
	}
	if meta.Status != types.RunStatusInProgress {
		t.Errorf("status = %s, want in-progress", meta.Status)
	}
}

func TestRunTool_ParentLinkage(t *testing.T) {
	root := t.TempDir()
	ledger := runledger.New(root)
	parent, err := ledger.Create("spec", "plan", nil)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}

	tool := &RunTool{ledger: ledger}
	result, err := tool.Handle(t.Context(), callRequest("warden_run", map[string]any{
		"subsystem":     "tdd",
		"phase":         "implement",
		"parent_run_id": parent.RunID,
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	var payload struct {
		RunID string `json:"run_id"`
	}
	decodeResult(t, result, &payload)

	child, err := ledger.Load(payload.RunID)
	if err != nil {
		t.Fatalf("load child: %v", err)
	}
	if child.ParentRunID == nil || *child.ParentRunID != parent.RunID {
		t.Errorf("parent linkage missing, got %v", child.ParentRunID)
	}
}

func TestRunTool_MissingArgs(t *testing.T) {
	tool := &RunTool{ledger: runledger.New(t.TempDir())}
	result, err := tool.Handle(t.Context(), callRequest("warden_run", map[string]any{
		"subsystem": "tdd",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing phase")
	}
}

func TestRunInfoTool(t *testing.T) {
	root := t.TempDir()
	ledger := runledger.New(root)
	meta, err := ledger.Create("tdd", "implement", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tool := &RunInfoTool{ledger: ledger}
	result, err := tool.Handle(t.Context(), callRequest("warden_run_info", map[string]any{
		"run_id": meta.RunID,
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	var payload struct {
		Run      types.RunMeta `json:"run"`
		Orphaned bool          `json:"orphaned"`
	}
	decodeResult(t, result, &payload)
	if payload.Run.RunID != meta.RunID {
		t.Errorf("run id = %s, want %s", payload.Run.RunID, meta.RunID)
	}
	// The run belongs to this live process, so it cannot be orphaned.
	if payload.Orphaned {
		t.Error("live in-progress run reported as orphaned")
	}
}

func TestRunInfoTool_NotFound(t *testing.T) {
	tool := &RunInfoTool{ledger: runledger.New(t.TempDir())}
	result, err := tool.Handle(t.Context(), callRequest("warden_run_info", map[string]any{
		"run_id": "run-20260101T000000-deadbeef",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown run")
	}
}

func TestRequestCreateTool(t *testing.T) {
	root := t.TempDir()
	ledger := runledger.New(root)
	store := interop.NewStore(root)
	parent, err := ledger.Create("alpha", "plan", nil)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}

	tool := &RequestCreateTool{store: store, ledger: ledger}
	result, err := tool.Handle(t.Context(), callRequest("warden_request_create", map[string]any{
		"from_subsystem":  "alpha",
		"to_subsystem":    "beta",
		"action":          "beta.implement",
		"parent_run_id":   parent.RunID,
		"priority":        "high",
		"reasoning":       "alpha's plan needs beta's implementation",
		"max_files":       float64(10),
		"max_total_bytes": float64(4096),
		"allowed_paths":   "docs/:*.md",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	var payload struct {
		RequestID    string `json:"request_id"`
		RequestPath  string `json:"request_path"`
		ResponsePath string `json:"response_path"`
	}
	decodeResult(t, result, &payload)
	if payload.RequestID == "" || payload.ResponsePath == "" {
		t.Fatalf("incomplete payload: %+v", payload)
	}

	request, err := store.LoadRequest(payload.RequestID)
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if request.Priority != types.PriorityHigh {
		t.Errorf("priority = %s, want high", request.Priority)
	}
	if request.ReadBudget.MaxFiles != 10 || request.ReadBudget.MaxTotalBytes != 4096 {
		t.Errorf("budget = %+v", request.ReadBudget)
	}
	if len(request.ReadBudget.AllowedPaths) != 2 ||
		request.ReadBudget.AllowedPaths[0] != "docs/" || request.ReadBudget.AllowedPaths[1] != "*.md" {
		t.Errorf("allowed_paths = %v, want [docs/ *.md]", request.ReadBudget.AllowedPaths)
	}
	if store.Answered(payload.RequestID) {
		t.Error("freshly created request should be unanswered")
	}
}

func TestPumpTool(t *testing.T) {
	root := t.TempDir()
	ledger := runledger.New(root)
	store := interop.NewStore(root)
	parent, err := ledger.Create("alpha", "plan", nil)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	request, err := interop.CreateRequest(store, ledger, interop.RequestParams{
		FromSubsystem: "alpha",
		FromPhase:     "plan",
		ToSubsystem:   "beta",
		Action:        "beta.implement",
		ParentRunID:   parent.RunID,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	runner := interop.PhaseRunnerFunc(func(_ context.Context, _ *types.RunMeta, _ *types.InteropRequest, _ types.ReadBudget) (interop.PhaseResult, error) {
		return interop.PhaseResult{Status: types.RunStatusOK, Notes: "done"}, nil
	})
	tool := &PumpTool{router: interop.NewRouter(store, ledger, runner, nil, nil)}

	result, err := tool.Handle(t.Context(), callRequest("warden_pump", nil))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	var response types.InteropResponse
	decodeResult(t, result, &response)
	if response.RequestID != request.RequestID {
		t.Errorf("response for %s, want %s", response.RequestID, request.RequestID)
	}
	if response.Status != types.ResponseOK {
		t.Errorf("status = %s, want ok", response.Status)
	}

	// The queue is drained now; a second pump reports emptiness as a tool
	// error, not an infrastructure failure.
	result, err = tool.Handle(t.Context(), callRequest("warden_pump", nil))
	if err != nil {
		t.Fatalf("handle on empty queue: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for empty queue")
	}
}

func TestQueryLogTool(t *testing.T) {
	root := t.TempDir()
	ledger := runledger.New(root)
	meta, err := ledger.Create("tdd", "implement", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	lines := []string{"compile ok", "test run started", "ERROR assertion failed", "test run finished"}
	if err := os.WriteFile(meta.LogPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	tool := &QueryLogTool{ledger: ledger}

	result, err := tool.Handle(t.Context(), callRequest("warden_query_log", map[string]any{
		"run_id": meta.RunID,
		"mode":   "tail",
		"lines":  float64(2),
	}))
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	out := textOf(t, result)
	if !strings.Contains(out, "test run finished") || strings.Contains(out, "compile ok") {
		t.Errorf("tail window wrong:\n%s", out)
	}

	result, err = tool.Handle(t.Context(), callRequest("warden_query_log", map[string]any{
		"run_id":  meta.RunID,
		"mode":    "grep",
		"pattern": "ERROR",
	}))
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	out = textOf(t, result)
	if !strings.Contains(out, "assertion failed") {
		t.Errorf("grep missed match:\n%s", out)
	}

	result, err = tool.Handle(t.Context(), callRequest("warden_query_log", map[string]any{
		"run_id": meta.RunID,
		"mode":   "grep",
	}))
	if err != nil {
		t.Fatalf("grep without pattern: %v", err)
	}
	if !result.IsError {
		t.Error("grep without pattern should be an error result")
	}
}

func TestNew_RegistersTools(t *testing.T) {
	root := t.TempDir()
	if s := New(Config{Root: root}); s == nil {
		t.Fatal("nil server")
	}
	runner := interop.PhaseRunnerFunc(func(_ context.Context, _ *types.RunMeta, _ *types.InteropRequest, _ types.ReadBudget) (interop.PhaseResult, error) {
		return interop.PhaseResult{Status: types.RunStatusOK}, nil
	})
	if s := New(Config{Root: root, Runner: runner}); s == nil {
		t.Fatal("nil server with runner")
	}
	// The server touches the root lazily; construction must not scatter
	// directories.
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("construction created %d entries under root", len(entries))
	}
}
