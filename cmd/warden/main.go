// Package main provides the warden CLI entrypoint.
//
// Usage:
//
//	warden <command> [subcommand] [options]
//
// Exit codes for run and pump:
//   - 0: success
//   - 1: phase failed
//   - 2: setup error or guard denial
//   - 3: blocked (routing or budget preconditions unmet)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/cli/cmd"
	"github.com/pithecene-io/warden/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "warden",
		Usage:          "Phase orchestration: tracked runs, guarded tool calls, interop dispatch",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.GuardCommand(),
			cmd.RequestCommand(),
			cmd.PumpCommand(),
			cmd.InfoCommand(),
			cmd.QueryLogCommand(),
			cmd.DashboardCommand(),
			cmd.WatchCommand(),
			cmd.ArchiveCommand(),
			cmd.McpCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from
// cli.Exit() so run/pump/guard codes propagate to hook harnesses.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
