// Package cmd provides CLI commands for the warden binary.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/cli/config"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for watch.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (watch only)",
	}

	// ConfigFlag points at the warden.yaml config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to warden.yaml",
		Value:   "warden.yaml",
	}

	// RootFlag overrides the orchestration root.
	RootFlag = &cli.StringFlag{
		Name:  "root",
		Usage: "Orchestration root holding runs/ and interop/",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
		ConfigFlag,
		RootFlag,
	}
}

// loadConfig reads warden.yaml when it exists. A missing config file is not
// an error: every setting has a flag or a default.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if c.IsSet("config") {
			return nil, err
		}
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// resolveRoot picks the orchestration root: flag, then config, then the
// .warden directory under the working directory.
func resolveRoot(c *cli.Context, cfg *config.Config) string {
	if root := c.String("root"); root != "" {
		return root
	}
	if cfg.Root != "" {
		return cfg.Root
	}
	return ".warden"
}

// resolveDashboardHome picks the registry home: flag, then config, then
// ~/.warden.
func resolveDashboardHome(c *cli.Context, cfg *config.Config) string {
	if home := c.String("home"); home != "" {
		return home
	}
	if cfg.DashboardHome != "" {
		return cfg.DashboardHome
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".warden-dashboard"
	}
	return filepath.Join(userHome, ".warden")
}
