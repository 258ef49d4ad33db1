package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	webhookapi "github.com/voicetyped/lexintake/pkg/webhook/api"
)

var (
	attemptsTeam   string
	attemptsStatus string
	attemptsLimit  int
	attemptsOffset int
	retryTeamID    string
)

// attemptsCmd groups webhook audit commands
var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Inspect the webhook delivery log",
}

var attemptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List webhook attempts of a team",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if attemptsTeam == "" {
			return fmt.Errorf("--team is required")
		}
		attempts, err := newClient().listAttempts(cmd.Context(), attemptsTeam, attemptsStatus, attemptsLimit, attemptsOffset)
		if err != nil {
			return err
		}
		return printAttempts(cmd.OutOrStdout(), attempts)
	},
}

var attemptsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one webhook attempt including its payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newClient().getAttempt(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), a)
	},
}

// retryCmd re-arms failed chains by id or for a whole team
var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry a failed webhook attempt, or every failed attempt of a team",
	Long: `Retry re-sends a failed or retry-scheduled webhook attempt using the
team's current webhook URL and secret.

  intakectl retry <id>
  intakectl retry --team <teamId>`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		switch {
		case len(args) == 1 && retryTeamID != "":
			return fmt.Errorf("give either an attempt id or --team, not both")
		case len(args) == 1:
			a, err := c.retryAttempt(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printAttempts(cmd.OutOrStdout(), []webhookapi.AttemptResponse{*a})
		case retryTeamID != "":
			resp, err := c.retryTeam(cmd.Context(), retryTeamID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retried %d attempt(s) for team %s\n", resp.Retried, resp.TeamID)
			return printAttempts(cmd.OutOrStdout(), resp.Attempts)
		default:
			return fmt.Errorf("an attempt id or --team is required")
		}
	},
}

func init() {
	attemptsListCmd.Flags().StringVar(&attemptsTeam, "team", "", "Team id")
	attemptsListCmd.Flags().StringVar(&attemptsStatus, "status", "", "Filter by status (pending, success, failed, retry)")
	attemptsListCmd.Flags().IntVar(&attemptsLimit, "limit", 50, "Page size")
	attemptsListCmd.Flags().IntVar(&attemptsOffset, "offset", 0, "Page offset")

	retryCmd.Flags().StringVar(&retryTeamID, "team", "", "Retry every failed attempt of this team")
}

func printAttempts(w io.Writer, attempts []webhookapi.AttemptResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEVENT\tSTATUS\tCODE\tRETRIES\tNEXT RETRY\tCREATED")
	for _, a := range attempts {
		next := a.NextRetryAt
		if next == "" {
			next = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			a.ID, a.EventType, a.Status, a.ResponseCode, a.RetryCount, next, a.CreatedAt)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
