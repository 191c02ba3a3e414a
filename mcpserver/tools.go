package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pithecene-io/warden/interop"
	"github.com/pithecene-io/warden/querylog"
	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

// RunTool allocates a run record (warden_run).
type RunTool struct {
	ledger *runledger.Ledger
}

// Definition returns the MCP tool definition for registration.
func (t *RunTool) Definition() mcp.Tool {
	return mcp.NewTool("warden_run",
		mcp.WithDescription(
			"Allocate a run for a phase about to execute. "+
				"Returns the run id and artifact pointers; the phase must finalize the run when it ends.",
		),
		mcp.WithString("subsystem", mcp.Required(), mcp.Description("Owning subsystem name")),
		mcp.WithString("phase", mcp.Required(), mcp.Description("Phase name within the subsystem")),
		mcp.WithString("parent_run_id", mcp.Description("Run this one descends from, if any")),
	)
}

// Handle processes the warden_run tool call.
func (t *RunTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subsystem := req.GetString("subsystem", "")
	phase := req.GetString("phase", "")
	if subsystem == "" || phase == "" {
		return mcp.NewToolResultError("'subsystem' and 'phase' are required"), nil
	}

	var parent *string
	if p := req.GetString("parent_run_id", ""); p != "" {
		parent = &p
	}
	meta, err := t.ledger.Create(subsystem, phase, parent)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create run: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"run_id":      meta.RunID,
		"events_path": meta.EventsPath,
		"log_path":    meta.LogPath,
	})
}

// RunInfoTool reports a run's record and orphan status (warden_run_info).
type RunInfoTool struct {
	ledger *runledger.Ledger
}

func (t *RunInfoTool) Definition() mcp.Tool {
	return mcp.NewTool("warden_run_info",
		mcp.WithDescription("Look up a run record: status, lineage, artifact pointers, orphan flag."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
	)
}

func (t *RunInfoTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("run_id", "")
	if runID == "" {
		return mcp.NewToolResultError("'run_id' is required"), nil
	}

	meta, err := t.ledger.Load(runID)
	if err != nil {
		if errors.Is(err, runledger.ErrRunNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("run %s not found", runID)), nil
		}
		return nil, err
	}
	return jsonResult(map[string]any{
		"run":      meta,
		"orphaned": runledger.Orphaned(meta),
	})
}

// RequestCreateTool persists an interop request (warden_request_create).
type RequestCreateTool struct {
	store  *interop.Store
	ledger *runledger.Ledger
}

func (t *RequestCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("warden_request_create",
		mcp.WithDescription(
			"Create a cross-subsystem handoff request. "+
				"Returns the request id; poll the response file or run warden_pump to execute it.",
		),
		mcp.WithString("from_subsystem", mcp.Required(), mcp.Description("Requesting subsystem")),
		mcp.WithString("from_phase", mcp.Description("Requesting phase; inferred from the parent run when omitted")),
		mcp.WithString("to_subsystem", mcp.Required(), mcp.Description("Target subsystem")),
		mcp.WithString("action", mcp.Required(), mcp.Description("Target action, '<subsystem>.<phase>'")),
		mcp.WithString("parent_run_id", mcp.Required(), mcp.Description("Run on whose behalf the request is made")),
		mcp.WithString("priority", mcp.Description("Queue priority"), mcp.DefaultString("normal"), mcp.Enum("low", "normal", "high")),
		mcp.WithString("reasoning", mcp.Description("1-3 sentence justification, recorded for the dashboard")),
		mcp.WithNumber("max_files", mcp.Description("Read-budget ceiling: distinct files the target phase may read")),
		mcp.WithNumber("max_total_bytes", mcp.Description("Read-budget ceiling: cumulative bytes the target phase may read")),
		mcp.WithString("allowed_paths", mcp.Description("Colon-separated path patterns exempt from read-budget charging")),
	)
}

func (t *RequestCreateTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := interop.RequestParams{
		FromSubsystem: req.GetString("from_subsystem", ""),
		FromPhase:     req.GetString("from_phase", ""),
		ToSubsystem:   req.GetString("to_subsystem", ""),
		Action:        req.GetString("action", ""),
		ParentRunID:   req.GetString("parent_run_id", ""),
		Priority:      types.RequestPriority(req.GetString("priority", "normal")),
		Reasoning:     req.GetString("reasoning", ""),
		ReadBudget: types.ReadBudget{
			MaxFiles:      req.GetInt("max_files", 0),
			MaxTotalBytes: int64(req.GetInt("max_total_bytes", 0)),
			AllowedPaths:  splitAllowedPaths(req.GetString("allowed_paths", "")),
		},
	}

	request, err := interop.CreateRequest(t.store, t.ledger, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create request: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"request_id":    request.RequestID,
		"request_path":  t.store.RequestPath(request.RequestID),
		"response_path": t.store.ResponsePath(request.RequestID),
	})
}

// PumpTool dispatches one pending request (warden_pump).
type PumpTool struct {
	router *interop.Router
}

func (t *PumpTool) Definition() mcp.Tool {
	return mcp.NewTool("warden_pump",
		mcp.WithDescription(
			"Execute one interop request: the named one, or the oldest pending request of the highest priority.",
		),
		mcp.WithString("request_id", mcp.Description("Specific request to dispatch; empty picks from the queue")),
	)
}

func (t *PumpTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	response, err := t.router.PumpOnce(ctx, req.GetString("request_id", ""))
	if err != nil {
		if errors.Is(err, interop.ErrQueueEmpty) || errors.Is(err, interop.ErrAlreadyDispatched) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}
	return jsonResult(response)
}

// QueryLogTool is the only sanctioned way to read a run log
// (warden_query_log). Output is byte-capped.
type QueryLogTool struct {
	ledger *runledger.Ledger
}

func (t *QueryLogTool) Definition() mcp.Tool {
	return mcp.NewTool("warden_query_log",
		mcp.WithDescription(
			"Bounded query over a run's raw log. Modes: tail (last n lines), grep (regex matches), summary. "+
				"Output is capped; there is no way to read a whole log through this facade.",
		),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run whose log to query")),
		mcp.WithString("mode", mcp.DefaultString("tail"), mcp.Enum("tail", "grep", "summary")),
		mcp.WithNumber("lines", mcp.Description("Tail line count")),
		mcp.WithString("pattern", mcp.Description("Regex for grep mode")),
	)
}

func (t *QueryLogTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("run_id", "")
	if runID == "" {
		return mcp.NewToolResultError("'run_id' is required"), nil
	}
	meta, err := t.ledger.Load(runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run %s: %v", runID, err)), nil
	}

	var result *querylog.Result
	switch mode := req.GetString("mode", "tail"); mode {
	case "tail":
		result, err = querylog.Tail(meta.LogPath, req.GetInt("lines", 0))
	case "grep":
		pattern := req.GetString("pattern", "")
		if pattern == "" {
			return mcp.NewToolResultError("'pattern' is required for grep mode"), nil
		}
		result, err = querylog.Grep(meta.LogPath, pattern)
	case "summary":
		result, err = querylog.Summary(meta.LogPath)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown mode %q", mode)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(querylog.Render(result)), nil
}

// splitAllowedPaths splits a colon-separated allowlist, dropping empty
// entries. Same wire shape as the WARDEN_ALLOWED_PATHS environment
// variable.
func splitAllowedPaths(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ":") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// jsonResult renders a pointer-oriented payload as a JSON text result.
func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
