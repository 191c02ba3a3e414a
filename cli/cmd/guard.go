package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/budget"
	"github.com/pithecene-io/warden/guard"
	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

// exitDenied is the guard hook's deny exit code. Hook harnesses treat any
// non-zero code as a block, but 2 distinguishes a policy denial from a
// malformed invocation (1).
const exitDenied = 2

// toolCallInput is the hook wire format read on stdin.
type toolCallInput struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Command string `json:"command,omitempty"`
	Size    int64  `json:"size,omitempty"`
}

// verdictOutput is the hook wire format written on stdout.
type verdictOutput struct {
	Decision string `json:"decision"` // allow or deny
	Reason   string `json:"reason,omitempty"`
	Category string `json:"category,omitempty"`
}

// GuardCommand returns the guard command: the tool-call interception
// entrypoint for hook harnesses. Configuration comes from the environment
// (WARDEN_* variables) plus warden.yaml patterns; the tool call arrives as
// one JSON object on stdin.
func GuardCommand() *cli.Command {
	return &cli.Command{
		Name:  "guard",
		Usage: "Intercept one tool call (hook entrypoint, reads JSON from stdin)",
		Flags: []cli.Flag{
			ConfigFlag,
			RootFlag,
		},
		Action: guardAction,
	}
}

func guardAction(c *cli.Context) error {
	call, err := parseToolCall(os.Stdin)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid tool call: %v", err), 1)
	}

	envConfig, err := guard.ConfigFromEnv()
	if err != nil {
		return cli.Exit(fmt.Sprintf("guard environment: %v", err), 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %v", err), 1)
	}
	classifierConfig := cfg.ClassifierConfig()
	classifierConfig.AllowedPaths = append(classifierConfig.AllowedPaths, envConfig.AllowedPaths...)

	enforcer := guard.NewEnforcer(envConfig,
		guard.WithClassifier(guard.NewClassifier(classifierConfig)))

	if err := enforcer.Intercept(call); err != nil {
		recordDenial(resolveRoot(c, cfg), call, err)
		verdict := verdictOutput{Decision: "deny", Reason: err.Error()}
		var denied *guard.DeniedError
		if errors.As(err, &denied) {
			verdict.Category = string(denied.Category)
		}
		emitVerdict(verdict)
		return cli.Exit(err.Error(), exitDenied)
	}

	emitVerdict(verdictOutput{Decision: "allow"})
	return nil
}

// parseToolCall decodes the hook payload into an enforcer call.
func parseToolCall(r io.Reader) (guard.ToolCall, error) {
	var input toolCallInput
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return guard.ToolCall{}, err
	}

	kind := guard.ToolKind(input.Kind)
	switch kind {
	case guard.ToolRead, guard.ToolWrite, guard.ToolEdit, guard.ToolDelete:
		if input.Path == "" {
			return guard.ToolCall{}, fmt.Errorf("%s call requires a path", kind)
		}
	case guard.ToolCommand:
		if input.Command == "" {
			return guard.ToolCall{}, errors.New("command call requires command text")
		}
	default:
		return guard.ToolCall{}, fmt.Errorf("unknown tool kind %q", input.Kind)
	}

	return guard.ToolCall{
		Kind:    kind,
		Path:    input.Path,
		Command: input.Command,
		Size:    input.Size,
	}, nil
}

func emitVerdict(v verdictOutput) {
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(v)
}

// recordDenial appends a guard event to the active run's stream,
// best-effort. Denials outside any tracked run are still valid denials.
func recordDenial(root string, call guard.ToolCall, denyErr error) {
	runID := os.Getenv(guard.EnvRunID)
	if runID == "" {
		return
	}
	ledger := runledger.New(root)
	meta, err := ledger.Load(runID)
	if err != nil {
		return
	}

	eventType := types.EventGuardBlocked
	if errors.Is(denyErr, budget.ErrBudgetExceeded) {
		eventType = types.EventBudgetDenied
	}
	target := call.Path
	if call.Kind == guard.ToolCommand {
		target = call.Command
	}
	_ = runledger.AppendEvent(meta.EventsPath, runID, eventType, map[string]any{
		"kind":   string(call.Kind),
		"target": target,
		"reason": denyErr.Error(),
	})
}
