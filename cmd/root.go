package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fbromtl/gouvernance-sub001/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "adp",
	Short: "Decision control plane for autonomous agents",
	Long: `adp registers AI agents, authorizes their decisions against the
autonomy × decision-type matrix and organization policies, and keeps a
tamper-evident, hash-chained audit trail of everything they decide.

Agents reach it over MCP (adp serve) or HTTP (adp server).`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
