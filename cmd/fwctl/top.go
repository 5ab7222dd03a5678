package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/flywheeld/internal/monitor"
)

var (
	// top command flags
	topMetricsURL string
	topInterval   time.Duration
)

func init() {
	rootCmd.AddCommand(topCmd)

	topCmd.Flags().StringVar(&topMetricsURL, "metrics", "http://localhost:8428", "Prometheus-compatible metrics server URL")
	topCmd.Flags().DurationVar(&topInterval, "interval", 2*time.Second, "Refresh interval")
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live pipeline dashboard",
	Long: `Run a terminal dashboard that refreshes pipeline status and metric rates
on an interval.

The status pane reads the daemon directly; the rate and latency panes query
a Prometheus-compatible metrics server that scrapes the daemon.

Keys:
  q, ctrl+c  quit
  r          refresh now

Examples:
  # Run against local defaults
  fwctl top

  # Faster refresh against a remote metrics server
  fwctl top --metrics http://metrics.internal:8428 --interval 1s`,
	RunE: runTop,
}

// runTop handles the top command
func runTop(cmd *cobra.Command, args []string) error {
	if topInterval < 250*time.Millisecond {
		return fmt.Errorf("refresh interval %s is too short (minimum 250ms)", topInterval)
	}

	model := monitor.NewModel(serverURL, topMetricsURL, topInterval)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}

	return nil
}
