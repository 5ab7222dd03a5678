package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/flywheeld/internal/insight"
	"github.com/fyrsmithlabs/flywheeld/internal/monitor"
)

var (
	// report command flags
	repDays       int
	repOutputJSON bool
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportPerformanceCmd)
	reportCmd.AddCommand(reportAnomaliesCmd)
	reportCmd.AddCommand(reportRecommendationsCmd)

	reportCmd.PersistentFlags().BoolVar(&repOutputJSON, "json", false, "Output report as JSON")
	reportPerformanceCmd.Flags().IntVar(&repDays, "days", 0, "Report window in days (0 uses the server default)")
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate insight reports",
	Long: `Generate reports from the interaction log: aggregate performance,
anomalous interactions, and improvement recommendations.

Examples:
  # Performance over the default window
  fwctl report performance

  # Performance over the last 30 days
  fwctl report performance --days 30

  # Anomalous interactions
  fwctl report anomalies

  # Improvement recommendations
  fwctl report recommendations`,
}

var reportPerformanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "Show aggregate performance",
	Long: `Show aggregate performance over a trailing window: volume, error rate,
latency, token usage, quality scores, and daily trends.

Examples:
  # Default window
  fwctl report performance

  # Last 30 days, as JSON
  fwctl report performance --days 30 --json`,
	RunE: runReportPerformance,
}

var reportAnomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Show anomalous interactions",
	Long: `Show interactions flagged as anomalous: slow responses, quality dips,
and satisfaction outliers.

Examples:
  # List anomalies
  fwctl report anomalies

  # Output as JSON
  fwctl report anomalies --json`,
	RunE: runReportAnomalies,
}

var reportRecommendationsCmd = &cobra.Command{
	Use:   "recommendations",
	Short: "Show improvement recommendations",
	Long: `Show suggested operational improvements derived from the current
performance report.

Examples:
  # List recommendations
  fwctl report recommendations

  # Output as JSON
  fwctl report recommendations --json`,
	RunE: runReportRecommendations,
}

// AnomaliesResponse matches internal/http/reports.go AnomaliesResponse
type AnomaliesResponse struct {
	Anomalies []insight.Anomaly `json:"anomalies"`
	Count     int               `json:"count"`
}

// RecommendationsResponse matches internal/http/reports.go RecommendationsResponse
type RecommendationsResponse struct {
	Recommendations []insight.Recommendation `json:"recommendations"`
	Count           int                      `json:"count"`
}

// runReportPerformance handles the report performance command
func runReportPerformance(cmd *cobra.Command, args []string) error {
	path := "/api/v1/reports/performance"
	if repDays > 0 {
		path = fmt.Sprintf("%s?days=%d", path, repDays)
	}

	var report insight.PerformanceReport
	if err := getJSON(path, &report); err != nil {
		return err
	}

	if repOutputJSON {
		return outputJSON(report)
	}

	fmt.Print(formatPerformanceReport(report))
	return nil
}

// formatPerformanceReport renders a performance report as human-readable text.
func formatPerformanceReport(report insight.PerformanceReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Performance report (last %d days)\n\n", report.PeriodDays)
	fmt.Fprintf(&b, "Interactions:       %d\n", report.TotalInteractions)
	fmt.Fprintf(&b, "Error rate:         %.1f%%\n", report.ErrorRatePercent)
	fmt.Fprintf(&b, "Avg response time:  %s\n", monitor.FormatLatency(report.AvgResponseTimeMs/1000))
	fmt.Fprintf(&b, "Avg tokens:         %.1f\n", report.AvgTokens)
	fmt.Fprintf(&b, "User satisfaction:  %s\n", monitor.FormatScore(report.AvgSatisfaction))

	if len(report.AvgQualityScores) > 0 {
		fmt.Fprintf(&b, "\nQuality scores:\n")
		names := make([]string, 0, len(report.AvgQualityScores))
		for name := range report.AvgQualityScores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  %-12s %s\n", name, monitor.FormatScore(report.AvgQualityScores[name]))
		}
	}

	if len(report.Daily) > 0 {
		fmt.Fprintf(&b, "\nDaily:\n")
		dates := make([]string, 0, len(report.Daily))
		for date := range report.Daily {
			dates = append(dates, date)
		}
		sort.Strings(dates)

		w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  DATE\tINTERACTIONS\tAVG RESPONSE\tERRORS")
		for _, date := range dates {
			day := report.Daily[date]
			fmt.Fprintf(w, "  %s\t%d\t%s\t%d\n",
				date,
				day.Interactions,
				monitor.FormatLatency(day.AvgResponseTime/1000),
				day.Errors,
			)
		}
		w.Flush()
	}

	return b.String()
}

// runReportAnomalies handles the report anomalies command
func runReportAnomalies(cmd *cobra.Command, args []string) error {
	var anomResp AnomaliesResponse
	if err := getJSON("/api/v1/reports/anomalies", &anomResp); err != nil {
		return err
	}

	if repOutputJSON {
		return outputJSON(anomResp)
	}

	if anomResp.Count == 0 {
		fmt.Println("No anomalies detected")
		return nil
	}

	fmt.Print(formatAnomalies(anomResp.Anomalies))
	return nil
}

// formatAnomalies renders anomalies as a table.
func formatAnomalies(anomalies []insight.Anomaly) string {
	var b strings.Builder

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tINTERACTION\tVALUE\tTHRESHOLD\tSEVERITY")
	for _, a := range anomalies {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%s\n",
			a.Type,
			truncate(a.InteractionID, 16),
			a.Value,
			a.Threshold,
			a.Severity,
		)
	}
	w.Flush()

	return b.String()
}

// runReportRecommendations handles the report recommendations command
func runReportRecommendations(cmd *cobra.Command, args []string) error {
	var recResp RecommendationsResponse
	if err := getJSON("/api/v1/reports/recommendations", &recResp); err != nil {
		return err
	}

	if repOutputJSON {
		return outputJSON(recResp)
	}

	if recResp.Count == 0 {
		fmt.Println("No recommendations; tracked metrics are within targets")
		return nil
	}

	fmt.Print(formatRecommendations(recResp.Recommendations))
	return nil
}

// formatRecommendations renders recommendations as a table.
func formatRecommendations(recs []insight.Recommendation) string {
	var b strings.Builder

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AREA\tPRIORITY\tCURRENT\tTARGET\tSUGGESTION")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%s\n",
			rec.Area,
			rec.Priority,
			rec.Current,
			rec.TargetValue,
			rec.Suggestion,
		)
	}
	w.Flush()

	return b.String()
}
