package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fbromtl/gouvernance-sub001/internal/adp"
	"github.com/fbromtl/gouvernance-sub001/internal/credential"
)

var (
	agentOrg     string
	agentSession string
	agentReq     adp.RegisterAgentRequest
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Register and manage agents",
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an agent and print its API key",
	Long: `Registers an agent in the organization of the session user and prints
the API key. The key is shown exactly once; store it somewhere safe.

The session token comes from --session or mcp.session_token.`,
	RunE: runAgentRegister,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the agents of an organization",
	RunE:  runAgentList,
}

var agentSuspendCmd = &cobra.Command{
	Use:   "suspend <agent-id>",
	Short: "Suspend an agent; its key stops authenticating",
	Args:  cobra.ExactArgs(1),
	RunE:  statusRunner(credential.StatusSuspended),
}

var agentReactivateCmd = &cobra.Command{
	Use:   "reactivate <agent-id>",
	Short: "Reactivate a suspended agent",
	Args:  cobra.ExactArgs(1),
	RunE:  statusRunner(credential.StatusActive),
}

var agentRevokeCmd = &cobra.Command{
	Use:   "revoke <agent-id>",
	Short: "Permanently revoke an agent and all of its keys",
	Args:  cobra.ExactArgs(1),
	RunE:  statusRunner(credential.StatusRevoked),
}

var agentKeysCmd = &cobra.Command{
	Use:   "keys <agent-id>",
	Short: "List an agent's keys by prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentKeys,
}

var agentRotateCmd = &cobra.Command{
	Use:   "rotate <agent-id>",
	Short: "Revoke an agent's keys and issue a new one",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentRotate,
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.AddCommand(agentRegisterCmd, agentListCmd, agentSuspendCmd, agentReactivateCmd, agentRevokeCmd, agentRotateCmd, agentKeysCmd)

	f := agentRegisterCmd.Flags()
	f.StringVar(&agentSession, "session", "", "session token of the registering user")
	f.StringVar(&agentReq.AgentID, "id", "", "agent id, unique within the organization")
	f.StringVar(&agentReq.Name, "name", "", "display name")
	f.StringVar(&agentReq.Description, "description", "", "what the agent does")
	f.StringVar(&agentReq.AutonomyLevel, "autonomy", "", "autonomy level (A1..A5)")
	f.StringSliceVar(&agentReq.AllowedDecisionTypes, "allow", nil, "allowed decision types (D1..D4)")
	f.StringVar(&agentReq.MaxRiskLevel, "max-risk", "", "maximum risk level (R1..R4)")
	f.StringVar(&agentReq.Owner, "owner", "", "owner contact (defaults to the session user's email)")
	agentRegisterCmd.MarkFlagRequired("id")
	agentRegisterCmd.MarkFlagRequired("name")
	agentRegisterCmd.MarkFlagRequired("autonomy")

	for _, c := range []*cobra.Command{agentListCmd, agentSuspendCmd, agentReactivateCmd, agentRevokeCmd, agentRotateCmd, agentKeysCmd} {
		c.Flags().StringVar(&agentOrg, "org", "", "organization id")
		c.MarkFlagRequired("org")
	}
}

func runAgentRegister(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	token := agentSession
	if token == "" {
		token = a.cfg.MCP.SessionToken
	}
	resp, err := a.svc.RegisterAgent(cmd.Context(), token, agentReq)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, resp.Warning)
	return printJSON(resp)
}

func runAgentList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	agents, err := a.agents.List(cmd.Context(), agentOrg)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Fprintf(os.Stderr, "No agents registered in %s.\n", agentOrg)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tNAME\tAUTONOMY\tSTATUS\tMAX RISK\tCREATED")
	for _, ag := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ag.AgentID, ag.Name, ag.AutonomyLevel, ag.Status,
			orDash(string(ag.MaxRiskLevel)), ag.CreatedAt.Format(timeLayout))
	}
	return w.Flush()
}

func statusRunner(status credential.Status) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.agents.SetStatus(cmd.Context(), agentOrg, args[0], status); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Agent %s is now %s.\n", args[0], status)
		return nil
	}
}

func runAgentRotate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	reg, err := a.agents.RotateCredential(cmd.Context(), agentOrg, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Earlier keys are revoked. The new key is shown once.")
	return printJSON(adp.RegisterAgentResponse{
		Agent:     reg.Agent,
		APIKey:    reg.Secret.Reveal(),
		KeyPrefix: reg.Secret.Prefix(),
	})
}

func runAgentKeys(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	creds, err := a.agents.Credentials(cmd.Context(), agentOrg, args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PREFIX\tCREATED\tLAST USED\tREVOKED")
	for _, c := range creds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Prefix, c.CreatedAt.Format(timeLayout), fmtTime(c.LastUsedAt), fmtTime(c.RevokedAt))
	}
	return w.Flush()
}

const timeLayout = "2006-01-02 15:04"

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
