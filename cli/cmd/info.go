package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/cli/render"
	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

// InfoCommand returns the info command: one run's record, orphan status,
// and optionally its ancestor thread.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show a run record",
		ArgsUsage: "<run-id>",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "thread",
				Usage: "Include the run's ancestor chain, child first",
			},
		),
		Action: infoAction,
	}
}

// runInfoResponse is the command's rendered output.
type runInfoResponse struct {
	Run      *types.RunMeta   `json:"run"`
	Orphaned bool             `json:"orphaned"`
	Thread   []*types.RunMeta `json:"thread,omitempty"`
}

func infoAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for info (use watch)", 1)
	}
	if c.NArg() != 1 {
		return cli.Exit("info requires exactly one run id", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ledger := runledger.New(resolveRoot(c, cfg))

	runID := c.Args().First()
	meta, err := ledger.Load(runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	resp := runInfoResponse{Run: meta, Orphaned: runledger.Orphaned(meta)}
	if c.Bool("thread") {
		thread, err := ledger.Thread(runID)
		if err != nil {
			return fmt.Errorf("resolve thread: %w", err)
		}
		resp.Thread = thread
	}
	return r.Render(resp)
}
