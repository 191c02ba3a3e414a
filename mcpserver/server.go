// Package mcpserver exposes the interop protocol over MCP so agent
// runtimes can allocate runs, create requests, pump the queue, and query
// logs through tool calls instead of shelling out. This is the composition
// root for the facade: it wires the ledger, store, and router into tool
// handlers. Results are pointer-oriented and byte-capped; the facade never
// returns raw artifact content.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/pithecene-io/warden/interop"
	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

// Config wires the facade's dependencies.
type Config struct {
	// Root is the orchestration root holding runs/ and interop/.
	Root string
	// Runner executes dispatched phases for the pump tool. A nil runner
	// disables warden_pump (requests can still be created and polled).
	Runner interop.PhaseRunner
	// Defaults are the per-phase default read budgets.
	Defaults interop.PhaseDefaults
}

// New builds the MCP server with all warden tools registered.
func New(config Config) *server.MCPServer {
	s := server.NewMCPServer(
		"warden",
		types.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(
			"Warden coordinates phase runs against a shared project tree. "+
				"Tools return pointers (run ids, artifact paths), never full file contents. "+
				"Read logs only through warden_query_log, which is byte-capped.",
		),
	)

	ledger := runledger.New(config.Root)
	store := interop.NewStore(config.Root)

	runTool := &RunTool{ledger: ledger}
	s.AddTool(runTool.Definition(), runTool.Handle)

	infoTool := &RunInfoTool{ledger: ledger}
	s.AddTool(infoTool.Definition(), infoTool.Handle)

	requestTool := &RequestCreateTool{store: store, ledger: ledger}
	s.AddTool(requestTool.Definition(), requestTool.Handle)

	if config.Runner != nil {
		pumpTool := &PumpTool{
			router: interop.NewRouter(store, ledger, config.Runner, config.Defaults, nil),
		}
		s.AddTool(pumpTool.Definition(), pumpTool.Handle)
	}

	queryLogTool := &QueryLogTool{ledger: ledger}
	s.AddTool(queryLogTool.Definition(), queryLogTool.Handle)

	return s
}

// ServeStdio runs the facade over stdio until the client disconnects.
func ServeStdio(config Config) error {
	return server.ServeStdio(New(config))
}
