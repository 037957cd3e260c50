package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfalkner/arbiter/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for coding-agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets a coding agent request second opinions natively. Configure it
with:

  {
    "mcpServers": {
      "arbiter": { "command": "arbiter", "args": ["mcp"] }
    }
  }

Available tools: arbiter_consult, arbiter_consensus, arbiter_review_files,
arbiter_list_tools, arbiter_cache_stats, arbiter_cache_clear,
arbiter_history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	o, err := getOrchestrator()
	if err != nil {
		return err
	}
	cm, err := getCache()
	if err != nil {
		return err
	}

	// History is optional for the MCP server; the history tool reports
	// unavailability if the db cannot be opened.
	hist, err := getHistory()
	if err != nil {
		ui.VerboseLog("history unavailable: %v", err)
		hist = nil
	}

	srv := mcp.NewServer(o, cfg.Registry(), cm, hist)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ui.VerboseLog("MCP server listening on stdio")
	return srv.ServeStdio(ctx)
}
