package client

import (
	"net/url"

	"github.com/spf13/cobra"
)

// NewSessionCommand constructs the `session` command group and subcommands.
func NewSessionCommand(baseURL BaseURLFunc) *cobra.Command {
	sessionCmd := &cobra.Command{Use: "session", Short: "Session operations"}
	sessionCmd.AddCommand(
		newSessionCreateCommand(baseURL),
		newSessionListCommand(baseURL),
		newSessionStatsCommand(baseURL),
	)
	return sessionCmd
}

func newSessionCreateCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session (a random id is assigned when --id is omitted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			resp, err := postJSON(baseURL(), "/v1/sessions/create", map[string]string{"sessionId": id})
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("id", "", "Session id (letters, digits, '-', '_')")
	return cmd
}

func newSessionListCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := getQuery(baseURL(), "/v1/sessions/list", nil)
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), resp)
		},
	}
}

func newSessionStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stored fragment stats for a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			q := url.Values{}
			q.Set("sessionId", id)
			resp, err := getQuery(baseURL(), "/v1/stats", q)
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("id", "", "Session id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
