package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/querylog"
	"github.com/pithecene-io/warden/runledger"
)

// QueryLogCommand returns the query-log command: the only sanctioned way to
// read a run's raw log. Output is byte-capped.
func QueryLogCommand() *cli.Command {
	return &cli.Command{
		Name:      "query-log",
		Usage:     "Bounded query over a run's raw log",
		ArgsUsage: "<run-id>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Query mode: tail, grep, summary",
				Value: "tail",
			},
			&cli.IntFlag{
				Name:  "lines",
				Usage: "Tail line count",
			},
			&cli.StringFlag{
				Name:  "pattern",
				Usage: "Regex for grep mode",
			},
		),
		Action: queryLogAction,
	}
}

func queryLogAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for query-log", 1)
	}
	if c.NArg() != 1 {
		return cli.Exit("query-log requires exactly one run id", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ledger := runledger.New(resolveRoot(c, cfg))
	meta, err := ledger.Load(c.Args().First())
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	var result *querylog.Result
	switch mode := c.String("mode"); mode {
	case "tail":
		result, err = querylog.Tail(meta.LogPath, c.Int("lines"))
	case "grep":
		if c.String("pattern") == "" {
			return cli.Exit("grep mode requires --pattern", 1)
		}
		result, err = querylog.Grep(meta.LogPath, c.String("pattern"))
	case "summary":
		result, err = querylog.Summary(meta.LogPath)
	default:
		return cli.Exit(fmt.Sprintf("unknown mode %q (tail, grep, summary)", mode), 1)
	}
	if err != nil {
		return err
	}

	// Log queries are line-oriented text, not structured records; the
	// renderer's table/json modes do not apply here.
	fmt.Print(querylog.Render(result))
	return nil
}
