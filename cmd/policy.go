package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fbromtl/gouvernance-sub001/internal/policy"
)

var (
	policyOrg  string
	policyFile string
	policyAll  bool
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage organization policies",
}

var policyAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a policy from a YAML file",
	Long: `Adds a policy read from a YAML file:

  policy_id: no-prod-deletes
  name: No production deletions without approval
  severity: high
  rule:
    conditions:
      decision_type: [D3, D4]
      environment: production
    requires: human_approval
  regulatory_mapping: [SOX-404]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := policy.LoadFile(policyFile)
		if err != nil {
			return err
		}
		p.OrganizationID = policyOrg
		added, err := a.policies.Add(cmd.Context(), p)
		if err != nil {
			return err
		}
		return printJSON(added)
	},
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the policies of an organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list := a.policies.ListActive
		if policyAll {
			list = a.policies.List
		}
		policies, err := list(cmd.Context(), policyOrg)
		if err != nil {
			return err
		}
		if len(policies) == 0 {
			fmt.Fprintf(os.Stderr, "No policies in %s.\n", policyOrg)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "POLICY\tNAME\tSEVERITY\tREQUIRES\tACTIVE\tMAPPING")
		for _, p := range policies {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
				p.PolicyID, p.Name, orDash(p.Severity), p.Rule.Requires, p.Active,
				orDash(strings.Join(p.RegulatoryMapping, ",")))
		}
		return w.Flush()
	},
}

var policyDisableCmd = &cobra.Command{
	Use:   "disable <policy-id>",
	Short: "Deactivate a policy; it stops applying to evaluations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.policies.SetActive(cmd.Context(), policyOrg, args[0], false); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Policy %s disabled.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyAddCmd, policyListCmd, policyDisableCmd)

	for _, c := range []*cobra.Command{policyAddCmd, policyListCmd, policyDisableCmd} {
		c.Flags().StringVar(&policyOrg, "org", "", "organization id")
		c.MarkFlagRequired("org")
	}
	policyAddCmd.Flags().StringVarP(&policyFile, "file", "f", "", "policy YAML file")
	policyAddCmd.MarkFlagRequired("file")
	policyListCmd.Flags().BoolVar(&policyAll, "all", false, "include inactive policies")
}
