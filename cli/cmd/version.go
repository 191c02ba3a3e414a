package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/cli/render"
	"github.com/pithecene-io/warden/types"
)

// VersionResponse reports the canonical project version. All components
// (CLI, guard hook, MCP facade) version in lockstep from types.Version.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for version", 1)
			}
			return r.Render(VersionResponse{
				Version:   types.Version,
				Commit:    commit,
				GoVersion: runtime.Version(),
			})
		},
	}
}
