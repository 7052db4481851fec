package client

import (
	"github.com/spf13/cobra"
)

// NewMaintenanceCommand constructs the `maintenance` command group.
func NewMaintenanceCommand(baseURL BaseURLFunc) *cobra.Command {
	maintCmd := &cobra.Command{Use: "maintenance", Short: "Retention and alert operations"}
	maintCmd.AddCommand(
		newPurgeCommand(baseURL),
		newAlertsCommand(baseURL),
	)
	return maintCmd
}

func newPurgeCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete stored fragments (or metric samples) past the retention age",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			maxAgeMs, _ := cmd.Flags().GetInt64("max-age-ms")
			metrics, _ := cmd.Flags().GetBool("metrics")
			body := map[string]any{"sessionId": sessionID, "maxAgeMs": maxAgeMs, "metrics": metrics}
			resp, err := postJSON(baseURL(), "/v1/maintenance/purge", body)
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("session", "", "Limit the purge to one session (default all)")
	cmd.Flags().Int64("max-age-ms", 0, "Age cutoff in ms (default from server retention config)")
	cmd.Flags().Bool("metrics", false, "Purge metric samples instead of fragments")
	return cmd
}

func newAlertsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "List raised alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := getQuery(baseURL(), "/v1/alerts", nil)
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), resp)
		},
	}
}
