package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/vibetest/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP interface over stdio",
	Long: `MCP exposes vibetest to LLM coding agents over the Model Context
Protocol. Tools:

  vibetest_start_session    start a session and block until it drains
  vibetest_session_status   session state, execution counts, health
  vibetest_list_sessions    recent sessions with optional filters
  vibetest_analyze_session  severity-ranked bug report for a session

Register it with a client, for example:

  claude mcp add vibetest -- vibetest mcp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(cmd *cobra.Command) error {
	st, err := getStore()
	if err != nil {
		return err
	}

	srv := mcp.NewServer(st, newEngine(st), newAggregator(st), defaultAgents())
	return srv.ServeStdio(cmd.Context())
}
