package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fbromtl/gouvernance-sub001/internal/report"
)

var (
	reportOrg    string
	reportAgent  string
	reportFormat string
	reportOut    string
	reportLimit  int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render an agent's compliance report",
	Long: `Renders a compliance report for one agent: deep chain verification,
its most recent decisions, the organization's active policies and the
authorization matrix. Output is Markdown or a standalone HTML page.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportFormat != "markdown" && reportFormat != "html" {
			return fmt.Errorf("unknown format %q: use markdown or html", reportFormat)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		b := report.Builder{Agents: a.agents, Traces: a.traces, Policies: a.policies}
		data, err := b.Build(cmd.Context(), reportOrg, reportAgent, reportLimit)
		if err != nil {
			return err
		}

		var out []byte
		if reportFormat == "html" {
			out, err = report.HTML(data)
		} else {
			var md string
			md, err = report.Markdown(data)
			out = []byte(md)
		}
		if err != nil {
			return err
		}

		if reportOut == "" {
			_, err = os.Stdout.Write(out)
			return err
		}
		if err := os.WriteFile(reportOut, out, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", reportOut)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	f := reportCmd.Flags()
	f.StringVar(&reportOrg, "org", "", "organization id")
	f.StringVar(&reportAgent, "agent", "", "agent id")
	f.StringVar(&reportFormat, "format", "markdown", "output format: markdown or html")
	f.StringVarP(&reportOut, "output", "o", "", "write to file instead of stdout")
	f.IntVar(&reportLimit, "limit", 50, "most recent decisions to list")
	reportCmd.MarkFlagRequired("org")
	reportCmd.MarkFlagRequired("agent")
}
