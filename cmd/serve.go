package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fbromtl/gouvernance-sub001/internal/adp"
	mcpserver "github.com/fbromtl/gouvernance-sub001/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long: `Starts a Model Context Protocol (MCP) server on stdio exposing the
decision tools and resources.

Tool calls may carry their own api_key; otherwise the key from mcp.api_key
(or ADP_MCP__API_KEY) is used. Resources always use the configured key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.MCP.APIKey == "" {
			a.logger.Warn("no mcp.api_key configured; resources will be unavailable and tools must pass api_key")
		}

		mcpserver.Version = Version

		srv := mcpserver.NewServer(a.svc, adp.Credentials{
			APIKey:       a.cfg.MCP.APIKey,
			SessionToken: a.cfg.MCP.SessionToken,
		}, a.logger)
		a.logger.Info("adp MCP server starting", "database", a.db.Path(), "pid", os.Getpid())
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
