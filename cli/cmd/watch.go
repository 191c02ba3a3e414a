package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/cli/tui"
)

// WatchCommand returns the watch command: an interactive follow of one
// run's record and event stream.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Follow a run's event stream",
		ArgsUsage: "<run-id>",
		Flags:     ReadOnlyFlags(),
		Action:    watchAction,
	}
}

func watchAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("watch requires exactly one run id", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	params := tui.WatchParams{
		Root:  resolveRoot(c, cfg),
		RunID: c.Args().First(),
	}

	// TUI is opt-in. Without --tui the view renders once and exits, so
	// watch stays usable in pipelines.
	if c.Bool("tui") {
		return tui.RunWatch(params)
	}
	fmt.Println(tui.RenderWatchStatic(params))
	return nil
}
