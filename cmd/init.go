package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fbromtl/gouvernance-sub001/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an adp configuration with an interactive wizard",
	Long:  `Runs an interactive wizard for the database location, HTTP port, logging and CORS, and writes the result to the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
