package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fbromtl/gouvernance-sub001/internal/session"
)

var (
	sessionUser  string
	sessionOrg   string
	sessionEmail string
	sessionTTL   time.Duration
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage user sessions used to register agents",
}

var sessionIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Record a user's organization and issue a session token",
	Long: `Creates or updates the user's profile and prints a session token.
Pass the token to "adp agent register --session" or to the register_agent
tool as a bearer token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := a.sessions.UpsertProfile(ctx, session.Principal{
			UserID:         sessionUser,
			OrganizationID: sessionOrg,
			Email:          sessionEmail,
		}); err != nil {
			return err
		}

		ttl := a.cfg.Session.TTL
		if cmd.Flags().Changed("ttl") {
			ttl = sessionTTL
		}
		token, err := a.sessions.Issue(ctx, sessionUser, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Session for %s in %s, valid for %s.\n", sessionUser, sessionOrg, ttl)
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionIssueCmd)

	f := sessionIssueCmd.Flags()
	f.StringVar(&sessionUser, "user", "", "user id")
	f.StringVar(&sessionOrg, "org", "", "organization id of the user")
	f.StringVar(&sessionEmail, "email", "", "user email, used as default agent owner")
	f.DurationVar(&sessionTTL, "ttl", 24*time.Hour, "session lifetime (overrides session.ttl)")
	sessionIssueCmd.MarkFlagRequired("user")
	sessionIssueCmd.MarkFlagRequired("org")
}
