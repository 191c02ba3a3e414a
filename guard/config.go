package guard

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pithecene-io/warden/budget"
	"github.com/pithecene-io/warden/types"
)

// Environment variable names for the guardrail surface. These exist for
// hook processes that cannot receive flags; the values are materialized
// into an explicit Config once at startup and never consulted again during
// interception.
const (
	EnvMaxReadBytes  = "WARDEN_READ_MAX_BYTES"
	EnvMaxFiles      = "WARDEN_BUDGET_MAX_FILES"
	EnvMaxTotalBytes = "WARDEN_BUDGET_MAX_TOTAL_BYTES"
	EnvAllowedPaths  = "WARDEN_ALLOWED_PATHS"
	EnvPhase         = "WARDEN_PHASE"
	EnvRunID         = "WARDEN_RUN_ID"
	EnvStateDir      = "WARDEN_STATE_DIR"
	// EnvDelegated marks a tool call already vetted by an outer
	// orchestrator's enforcer, so the inner enforcer must not re-check
	// or re-charge it.
	EnvDelegated = "WARDEN_GUARD_DELEGATED"
)

// Config is the enforcer's complete configuration, constructed once per
// process and passed to NewEnforcer.
type Config struct {
	// Phase is the active phase name. An empty or unknown phase enforces
	// only the universal checks.
	Phase string
	// RunKey identifies the budget state record; see budget.RunKey.
	RunKey string
	// StateDir holds budget state; see budget.Config.
	StateDir string
	// Budget is the cumulative read budget for the run.
	Budget types.ReadBudget
	// MaxReadBytes is the hard single-read ceiling. 0 = unlimited.
	MaxReadBytes int64
	// AllowedPaths is the unioned allowlist (environment + default +
	// caller-supplied), exempt from protection and budget charging.
	AllowedPaths []string
	// Delegated is true when this process was invoked by an outer
	// enforcer that already vetted the call.
	Delegated bool
}

// ConfigFromEnv materializes the guardrail environment surface into an
// explicit Config. The working directory is the run-key fallback when no
// run is active.
func ConfigFromEnv() (Config, error) {
	maxRead, err := envInt64(EnvMaxReadBytes)
	if err != nil {
		return Config{}, err
	}
	maxFiles, err := envInt64(EnvMaxFiles)
	if err != nil {
		return Config{}, err
	}
	maxTotal, err := envInt64(EnvMaxTotalBytes)
	if err != nil {
		return Config{}, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("resolve working directory: %w", err)
	}

	config := Config{
		Phase:        os.Getenv(EnvPhase),
		StateDir:     os.Getenv(EnvStateDir),
		MaxReadBytes: maxRead,
		Budget: types.ReadBudget{
			MaxFiles:      int(maxFiles),
			MaxTotalBytes: maxTotal,
		},
		AllowedPaths: splitPaths(os.Getenv(EnvAllowedPaths)),
		Delegated:    os.Getenv(EnvDelegated) == "1",
	}
	config.RunKey = runKeyFromEnv(cwd)
	if config.StateDir == "" {
		config.StateDir = defaultStateDir(cwd)
	}
	if err := config.Budget.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func runKeyFromEnv(cwd string) string {
	return budget.RunKey(os.Getenv(EnvRunID), cwd)
}

func defaultStateDir(cwd string) string {
	return cwd + "/.warden/state"
}

func envInt64(name string) (int64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %d", name, v)
	}
	return v, nil
}

// splitPaths splits a colon-separated allowlist, dropping empty entries.
func splitPaths(raw string) []string {
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
