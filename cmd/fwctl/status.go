package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/flywheeld/internal/monitor"
)

var statusOutputJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusOutputJSON, "json", false, "Output status as JSON")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status",
	Long: `Show the flywheeld pipeline status: queue depths, stored counts,
the most recent analysis run, metric baselines, and background loop health.

Examples:
  # Show status
  fwctl status

  # Output as JSON
  fwctl status --json

  # Query a different server
  fwctl status --server http://localhost:8080`,
	RunE: runStatus,
}

// runStatus handles the status command
func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := monitor.NewStatusClient(serverURL)
	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}

	if statusOutputJSON {
		return outputJSON(status)
	}

	fmt.Print(formatStatus(status))
	return nil
}

// formatStatus renders a status payload as human-readable text.
func formatStatus(status monitor.StatusPayload) string {
	var b strings.Builder

	state := "stopped"
	if status.Running {
		state = "running"
	}
	fmt.Fprintf(&b, "Pipeline: %s (uptime %s)\n\n", state, monitor.FormatUptime(status.UptimeSeconds))

	fmt.Fprintf(&b, "Feedback queued:        %d\n", status.FeedbackQueued)
	fmt.Fprintf(&b, "Feedback stored:        %d\n", status.FeedbackStored)
	fmt.Fprintf(&b, "Actions pending:        %d\n", status.ActionsPending)
	fmt.Fprintf(&b, "Actions completed (7d): %d\n", status.ActionsCompleted7d)
	fmt.Fprintf(&b, "Retraining volume:      %d\n", status.RetrainingVolume)

	if a := status.LastAnalysis; a != nil {
		fmt.Fprintf(&b, "\nLast analysis (%s):\n", a.RanAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "  Batch size:        %d\n", a.BatchSize)
		fmt.Fprintf(&b, "  Avg satisfaction:  %s\n", monitor.FormatScore(a.AvgSatisfaction))
		fmt.Fprintf(&b, "  Trend:             %s\n", a.Trend)
		fmt.Fprintf(&b, "  Actions generated: %d\n", a.ActionsGenerated)
		if a.QualityFlag {
			fmt.Fprintf(&b, "  Quality flag:      raised\n")
		}
	}

	if len(status.Baselines) > 0 {
		fmt.Fprintf(&b, "\nBaselines:\n")
		names := make([]string, 0, len(status.Baselines))
		for name := range status.Baselines {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  METRIC\tBASELINE\tCURRENT\tTREND")
		for _, name := range names {
			bl := status.Baselines[name]
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
				name,
				monitor.FormatScore(bl.BaselineValue),
				monitor.FormatScore(bl.CurrentValue),
				bl.Trend,
			)
		}
		w.Flush()
	}

	if len(status.Loops) > 0 {
		fmt.Fprintf(&b, "\nLoops:\n")
		w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tSTATE\tCYCLES\tFAILURES\tLAST ERROR")
		for _, loop := range status.Loops {
			state := "stopped"
			if loop.Running {
				state = "running"
			}
			fmt.Fprintf(w, "  %s\t%s\t%d\t%d\t%s\n",
				loop.Name,
				state,
				loop.Cycles,
				loop.Failures,
				truncate(loop.LastError, 40),
			)
		}
		w.Flush()
	}

	return b.String()
}
