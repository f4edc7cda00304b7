package cmd

import (
	"github.com/spf13/cobra"
)

var traceOrg string

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect audit trail records",
}

var traceShowCmd = &cobra.Command{
	Use:   "show <trace-id>",
	Short: "Print one trace record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.traces.Get(cmd.Context(), traceOrg, args[0])
		if err != nil {
			return err
		}
		return printJSON(t)
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.AddCommand(traceShowCmd)

	traceShowCmd.Flags().StringVar(&traceOrg, "org", "", "organization id")
	traceShowCmd.MarkFlagRequired("org")
}
