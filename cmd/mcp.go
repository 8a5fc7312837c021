package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/strand/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for coding agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets a coding agent query sessions and land its own branch natively.
Configure in the agent's MCP settings with:

  {
    "mcpServers": {
      "strand": { "command": "strand", "args": ["mcp"] }
    }
  }

Available tools: strand_list_sessions, strand_session_phase,
strand_check_merge, strand_merge_session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := getDeps()
		if err != nil {
			return err
		}
		srv := mcp.NewServer(d.store, d.detector, d.engine)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
