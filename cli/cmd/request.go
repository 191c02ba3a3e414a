package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/cli/render"
	"github.com/pithecene-io/warden/interop"
	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

// RequestCommand returns the request command: persist a cross-subsystem
// handoff request for a later pump.
func RequestCommand() *cli.Command {
	return &cli.Command{
		Name:  "request",
		Usage: "Create an interop request",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:     "from-subsystem",
				Usage:    "Requesting subsystem",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "from-phase",
				Usage: "Requesting phase (inferred from the parent run when omitted)",
			},
			&cli.StringFlag{
				Name:     "to-subsystem",
				Usage:    "Target subsystem",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "action",
				Usage:    "Target action, '<subsystem>.<phase>'",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "parent-run-id",
				Usage:    "Run on whose behalf the request is made",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "arg",
				Usage: "Positional argument for the target phase (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "must-read",
				Usage: "Path the target phase must read (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "deliverable",
				Usage: "Expected deliverable path (repeatable)",
			},
			&cli.IntFlag{
				Name:  "max-files",
				Usage: "Read-budget ceiling: distinct files",
			},
			&cli.Int64Flag{
				Name:  "max-total-bytes",
				Usage: "Read-budget ceiling: cumulative bytes",
			},
			&cli.StringSliceFlag{
				Name:  "allowed-path",
				Usage: "Read-budget allowlist pattern, exempt from charging (repeatable)",
			},
			&cli.StringFlag{
				Name:  "priority",
				Usage: "Queue priority: low, normal, high",
				Value: "normal",
			},
			&cli.StringFlag{
				Name:  "reasoning",
				Usage: "1-3 sentence justification, recorded for the dashboard",
			},
		),
		Action: requestAction,
	}
}

// requestResponse is the command's rendered output.
type requestResponse struct {
	RequestID    string `json:"request_id"`
	RequestPath  string `json:"request_path"`
	ResponsePath string `json:"response_path"`
	Priority     string `json:"priority"`
}

func requestAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for request", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	root := resolveRoot(c, cfg)

	store := interop.NewStore(root)
	ledger := runledger.New(root)
	request, err := interop.CreateRequest(store, ledger, interop.RequestParams{
		FromSubsystem: c.String("from-subsystem"),
		FromPhase:     c.String("from-phase"),
		ToSubsystem:   c.String("to-subsystem"),
		Action:        c.String("action"),
		Args:          c.StringSlice("arg"),
		ParentRunID:   c.String("parent-run-id"),
		MustRead:      c.StringSlice("must-read"),
		ReadBudget: types.ReadBudget{
			MaxFiles:      c.Int("max-files"),
			MaxTotalBytes: c.Int64("max-total-bytes"),
			AllowedPaths:  c.StringSlice("allowed-path"),
		},
		ExpectedDeliverables: c.StringSlice("deliverable"),
		Priority:             types.RequestPriority(c.String("priority")),
		Reasoning:            c.String("reasoning"),
	})
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	return r.Render(requestResponse{
		RequestID:    request.RequestID,
		RequestPath:  store.RequestPath(request.RequestID),
		ResponsePath: store.ResponsePath(request.RequestID),
		Priority:     string(request.Priority),
	})
}
