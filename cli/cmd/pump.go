package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/cli/render"
	"github.com/pithecene-io/warden/guard"
	"github.com/pithecene-io/warden/interop"
	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

// EnvRequestID is set for phase commands executed by the pump.
const EnvRequestID = "WARDEN_REQUEST_ID"

// PumpCommand returns the pump command: dispatch one pending interop
// request by executing the phase command under a fresh child run.
func PumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "pump",
		Usage: "Dispatch one interop request",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "request-id",
				Usage: "Specific request to dispatch (default: oldest pending of highest priority)",
			},
			&cli.StringFlag{
				Name:     "exec",
				Usage:    "Phase command; request args are appended as argv",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "agent-runtime",
				Usage: "Agent runtime label recorded on the child run",
			},
		),
		Action: pumpAction,
	}
}

func pumpAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for pump", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	root := resolveRoot(c, cfg)

	ledger := runledger.New(root)
	if label := c.String("agent-runtime"); label != "" {
		ledger = ledger.WithAgentRuntime(label)
	}
	store := interop.NewStore(root)
	runner := &execRunner{command: c.String("exec")}
	router := interop.NewRouter(store, ledger, runner, cfg.PhaseDefaults(), nil)

	response, err := router.PumpOnce(c.Context, c.String("request-id"))
	if err != nil {
		if errors.Is(err, interop.ErrQueueEmpty) {
			return cli.Exit("no pending requests", exitOK)
		}
		if errors.Is(err, interop.ErrAlreadyDispatched) {
			return cli.Exit(err.Error(), exitFailed)
		}
		return fmt.Errorf("dispatch: %w", err)
	}

	if err := r.Render(response); err != nil {
		return err
	}
	switch response.Status {
	case types.ResponseOK:
		return cli.Exit("", exitOK)
	case types.ResponseBlocked:
		return cli.Exit("", exitBlocked)
	default:
		return cli.Exit("", exitFailed)
	}
}

// execRunner executes one phase as a subprocess. The run identity and the
// effective read budget travel on the environment; stdout and stderr land
// in the child run's log.
type execRunner struct {
	command string
}

// Run implements interop.PhaseRunner.
func (e *execRunner) Run(ctx context.Context, run *types.RunMeta, request *types.InteropRequest, budget types.ReadBudget) (interop.PhaseResult, error) {
	logFile, err := os.OpenFile(run.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return interop.PhaseResult{}, fmt.Errorf("open run log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	cmd := exec.CommandContext(ctx, e.command, request.Args...)
	cmd.Stdout = io.MultiWriter(os.Stdout, logFile)
	cmd.Stderr = io.MultiWriter(os.Stderr, logFile)
	cmd.Env = append(os.Environ(), phaseEnv(run, request, budget)...)

	result := interop.PhaseResult{
		Status:   types.RunStatusOK,
		Pointers: []string{run.LogPath},
	}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.Status = types.RunStatusFailed
			result.Notes = fmt.Sprintf("phase command exited %d", exitErr.ExitCode())
			return result, nil
		}
		return interop.PhaseResult{}, fmt.Errorf("start phase command: %w", err)
	}
	return result, nil
}

// phaseEnv materializes the dispatched phase's guard surface: run
// identity, the originating request, and the effective read budget
// including its allowlist. Reads allowlisted by the merged budget must
// stay exempt inside the child, not just in the router's process.
func phaseEnv(run *types.RunMeta, request *types.InteropRequest, budget types.ReadBudget) []string {
	env := []string{
		guard.EnvRunID + "=" + run.RunID,
		guard.EnvPhase + "=" + run.Phase,
		EnvRequestID + "=" + request.RequestID,
	}
	if budget.MaxFiles > 0 {
		env = append(env, guard.EnvMaxFiles+"="+strconv.Itoa(budget.MaxFiles))
	}
	if budget.MaxTotalBytes > 0 {
		env = append(env, guard.EnvMaxTotalBytes+"="+strconv.FormatInt(budget.MaxTotalBytes, 10))
	}
	if len(budget.AllowedPaths) > 0 {
		env = append(env, guard.EnvAllowedPaths+"="+strings.Join(budget.AllowedPaths, ":"))
	}
	return env
}
