package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/mcpserver"
)

// McpCommand returns the mcp command: serve the warden tools over MCP
// stdio so agent runtimes can use the protocol without shelling out.
func McpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve warden tools over MCP stdio",
		Flags: []cli.Flag{
			ConfigFlag,
			RootFlag,
		},
		Action: mcpAction,
	}
}

func mcpAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// No Runner: the facade creates requests and polls responses; a
	// separate pump process executes phases. Keeping execution out of the
	// MCP process means a crashed phase cannot take the facade down.
	return mcpserver.ServeStdio(mcpserver.Config{
		Root:     resolveRoot(c, cfg),
		Defaults: cfg.PhaseDefaults(),
	})
}
