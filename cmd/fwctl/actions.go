package main

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/flywheeld/internal/action"
)

var (
	// actions command flags
	actStatus     string
	actSince      string
	actOutputJSON bool
)

func init() {
	rootCmd.AddCommand(actionsCmd)

	actionsCmd.Flags().StringVar(&actStatus, "status", "", "Filter by status: pending, in_progress, completed, or failed")
	actionsCmd.Flags().StringVar(&actSince, "since", "", "Only show actions created after this RFC 3339 timestamp")
	actionsCmd.Flags().BoolVar(&actOutputJSON, "json", false, "Output actions as JSON")
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List improvement actions",
	Long: `List improvement actions generated by the pipeline.

Examples:
  # List all actions
  fwctl actions

  # List pending actions
  fwctl actions --status pending

  # List actions completed since a date
  fwctl actions --status completed --since 2026-08-01T00:00:00Z

  # Output as JSON
  fwctl actions --json`,
	RunE: runActions,
}

// ActionsResponse matches internal/http/server.go ActionsResponse
type ActionsResponse struct {
	Actions []*action.Action `json:"actions"`
	Count   int              `json:"count"`
}

// runActions handles the actions command
func runActions(cmd *cobra.Command, args []string) error {
	if actSince != "" {
		if _, err := time.Parse(time.RFC3339, actSince); err != nil {
			return fmt.Errorf("invalid --since timestamp %q (want RFC 3339, e.g. 2026-08-01T00:00:00Z)", actSince)
		}
	}

	query := url.Values{}
	if actStatus != "" {
		query.Set("status", actStatus)
	}
	if actSince != "" {
		query.Set("since", actSince)
	}
	path := "/api/v1/actions"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var actResp ActionsResponse
	if err := getJSON(path, &actResp); err != nil {
		return err
	}

	if actOutputJSON {
		return outputJSON(actResp)
	}

	if actResp.Count == 0 {
		fmt.Println("No actions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tPRIORITY\tSTATUS\tCREATED\tDESCRIPTION")
	for _, act := range actResp.Actions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(act.ID, 12),
			act.Kind,
			act.Priority,
			act.Status,
			act.CreatedAt.Format("2006-01-02 15:04"),
			truncate(act.Description, 48),
		)
	}
	w.Flush()

	return nil
}
