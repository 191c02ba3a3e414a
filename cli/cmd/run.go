package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/adapter"
	"github.com/pithecene-io/warden/adapter/redis"
	"github.com/pithecene-io/warden/adapter/webhook"
	"github.com/pithecene-io/warden/cli/config"
	"github.com/pithecene-io/warden/guard"
	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

// Exit codes for run and pump.
const (
	exitOK         = 0
	exitFailed     = 1
	exitSetupError = 2
	exitBlocked    = 3
)

// RunCommand returns the run command: allocate a run record, execute the
// wrapped command under the guard environment, and finalize the run from
// its exit code.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a phase under a tracked run",
		ArgsUsage: "-- <command> [args...]",
		Flags: []cli.Flag{
			ConfigFlag,
			RootFlag,
			&cli.StringFlag{
				Name:     "subsystem",
				Usage:    "Owning subsystem name",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "phase",
				Usage:    "Phase name within the subsystem",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "parent-run-id",
				Usage: "Run this one descends from",
			},
			&cli.StringFlag{
				Name:  "agent-runtime",
				Usage: "Agent runtime label recorded on the run",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("run requires a command after --", exitSetupError)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %v", err), exitSetupError)
	}
	root := resolveRoot(c, cfg)

	ledger := runledger.New(root)
	if label := c.String("agent-runtime"); label != "" {
		ledger = ledger.WithAgentRuntime(label)
	}

	var parent *string
	if p := c.String("parent-run-id"); p != "" {
		parent = &p
	}
	subsystem, phase := c.String("subsystem"), c.String("phase")
	meta, err := ledger.Create(subsystem, phase, parent)
	if err != nil {
		return cli.Exit(fmt.Sprintf("create run: %v", err), exitSetupError)
	}
	logger := log.NewLogger(meta)
	logger.Info("phase starting", map[string]any{"command": c.Args().First()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	start := time.Now()
	exitCode, runErr := executePhase(ctx, cfg, meta, c.Args().Slice())
	duration := time.Since(start)

	status := types.RunStatusOK
	if runErr != nil || exitCode != 0 {
		status = types.RunStatusFailed
	}
	if err := ledger.Finalize(meta.RunID, status); err != nil {
		return cli.Exit(fmt.Sprintf("finalize run %s: %v", meta.RunID, err), exitSetupError)
	}
	logger.Info("phase finalized", map[string]any{
		"status":      string(status),
		"exit_code":   exitCode,
		"duration_ms": duration.Milliseconds(),
	})

	publishFinalized(cfg, ledger, meta.RunID, logger)

	if !c.Bool("quiet") {
		fmt.Printf("run_id=%s subsystem=%s phase=%s status=%s duration=%s\n",
			meta.RunID, subsystem, phase, status, duration.Round(time.Millisecond))
		fmt.Printf("log=%s events=%s\n", meta.LogPath, meta.EventsPath)
	}

	if status == types.RunStatusFailed {
		return cli.Exit("", exitFailed)
	}
	return cli.Exit("", exitOK)
}

// executePhase runs the wrapped command with the guard environment set,
// teeing output into the run log. The returned exit code is the command's;
// a non-nil error means the command could not be started at all.
func executePhase(ctx context.Context, cfg *config.Config, meta *types.RunMeta, argv []string) (int, error) {
	logFile, err := os.OpenFile(meta.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return -1, fmt.Errorf("open run log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = io.MultiWriter(os.Stdout, logFile)
	cmd.Stderr = io.MultiWriter(os.Stderr, logFile)
	cmd.Env = append(os.Environ(), guardEnv(cfg, meta)...)

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// guardEnv materializes the phase's guard surface for the child process.
func guardEnv(cfg *config.Config, meta *types.RunMeta) []string {
	env := []string{
		guard.EnvRunID + "=" + meta.RunID,
		guard.EnvPhase + "=" + meta.Phase,
	}
	budget := cfg.Guard.Budget
	if pc, ok := cfg.Subsystems[meta.Subsystem]; ok {
		// Merge keeps the stricter ceilings and unions the allowlists, so a
		// phase entry with only an allowlist still contributes.
		if phase, ok := pc.Phases[meta.Phase]; ok {
			budget = budget.Merge(phase.ReadBudget)
		}
	}
	if budget.MaxFiles > 0 {
		env = append(env, guard.EnvMaxFiles+"="+strconv.Itoa(budget.MaxFiles))
	}
	if budget.MaxTotalBytes > 0 {
		env = append(env, guard.EnvMaxTotalBytes+"="+strconv.FormatInt(budget.MaxTotalBytes, 10))
	}
	if cfg.Guard.MaxReadBytes > 0 {
		env = append(env, guard.EnvMaxReadBytes+"="+strconv.FormatInt(cfg.Guard.MaxReadBytes, 10))
	}
	// Global allowlist plus whatever the merged phase budget exempts.
	allowed := append(append([]string(nil), cfg.Guard.AllowedPaths...), budget.AllowedPaths...)
	if len(allowed) > 0 {
		env = append(env, guard.EnvAllowedPaths+"="+strings.Join(allowed, ":"))
	}
	return env
}

// publishFinalized sends the run-finalized event through the configured
// adapter. Notification failures never fail the run; they are warnings.
func publishFinalized(cfg *config.Config, ledger *runledger.Ledger, runID string, logger *log.Logger) {
	if cfg.Adapter.Type == "" {
		return
	}
	a, err := buildAdapter(cfg.Adapter)
	if err != nil {
		logger.Warn("adapter setup failed", map[string]any{"error": err.Error()})
		return
	}
	defer func() { _ = a.Close() }()

	meta, err := ledger.Load(runID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Publish(ctx, adapter.FromRunMeta(meta)); err != nil {
		logger.Warn("adapter publish failed", map[string]any{"error": err.Error()})
	}
}

// buildAdapter constructs the configured run-finalized adapter.
func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	retries := 3
	if ac.Retries != nil {
		retries = *ac.Retries
	}
	switch ac.Type {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type: %s", ac.Type)
	}
}
