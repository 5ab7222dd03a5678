package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model is the BubbleTea dashboard model behind fwctl top.
type Model struct {
	statusURL  string
	metricsURL string
	interval   time.Duration
	lastUpdate time.Time
	snap       Snapshot
	err        error
	quitting   bool

	queueProgress progress.Model
}

// Snapshot holds everything one refresh gathered: the daemon status plus
// the rates read from the metrics backend.
type Snapshot struct {
	Status       StatusPayload
	FeedbackRate float64
	ActionRate   float64
	HTTPRate     float64
	LatencyP95   float64

	// Ring buffers for sparklines (last N refreshes).
	QueueHistory    []float64
	FeedbackHistory []float64
	LatencyHistory  []float64
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard model reading the daemon at statusURL and
// the metrics backend at metricsURL.
func NewModel(statusURL, metricsURL string, interval time.Duration) Model {
	queueProg := progress.New(
		progress.WithGradient("#00ff00", "#ff0000"),
		progress.WithWidth(40),
	)

	return Model{
		statusURL:     statusURL,
		metricsURL:    metricsURL,
		interval:      interval,
		queueProgress: queueProg,
		snap: Snapshot{
			QueueHistory:    make([]float64, 0, historySize),
			FeedbackHistory: make([]float64, 0, historySize),
			LatencyHistory:  make([]float64, 0, historySize),
		},
	}
}

// runningBadge returns the engine status badge.
func runningBadge(running bool) string {
	if running {
		return healthyStyle.Render("✓ RUNNING")
	}
	return errorStyle.Render("✗ STOPPED")
}

// latencyBadge returns a colored status badge based on latency.
func latencyBadge(latencyMS float64) string {
	if latencyMS < 100 {
		return healthyStyle.Render("[✓]")
	} else if latencyMS < 500 {
		return warningStyle.Render("[⚠]")
	}
	return errorStyle.Render("[✗]")
}

// trendBadge renders a baseline trend.
func trendBadge(trend string) string {
	switch trend {
	case "improving":
		return healthyStyle.Render("↗ improving")
	case "declining":
		return warningStyle.Render("↘ declining")
	case "stable":
		return dimStyle.Render("→ stable")
	default:
		return dimStyle.Render("· no data")
	}
}

// loopBadge renders one loop's health symbol.
func loopBadge(loop LoopView) string {
	switch {
	case !loop.Running:
		return errorStyle.Render("✗")
	case loop.LastError != "":
		return warningStyle.Render("⚠")
	default:
		return healthyStyle.Render("✓")
	}
}

// appendToHistory appends a value to history, maintaining max size.
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data.
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg error

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchSnapshot(m.statusURL, m.metricsURL),
	)
}

// tick creates a tick command for auto-refresh.
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchSnapshot fetches the daemon status and the metric rates. The
// daemon being unreachable is the error state; a missing metrics backend
// only zeroes the rate numbers.
func fetchSnapshot(statusURL, metricsURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		status, err := NewStatusClient(statusURL).Status(ctx)
		if err != nil {
			return errMsg(err)
		}

		metrics := NewMetricsClient(metricsURL)
		feedbackRate, _ := metrics.QueryFeedbackRate(ctx)
		actionRate, _ := metrics.QueryActionRate(ctx)
		httpRate, _ := metrics.QueryHTTPRate(ctx)
		latencyP95, _ := metrics.QueryHTTPLatencyP95(ctx)

		return snapshotMsg(Snapshot{
			Status:       status,
			FeedbackRate: feedbackRate,
			ActionRate:   actionRate,
			HTTPRate:     httpRate,
			LatencyP95:   latencyP95,
		})
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchSnapshot(m.statusURL, m.metricsURL)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchSnapshot(m.statusURL, m.metricsURL),
		)

	case snapshotMsg:
		snap := Snapshot(msg)
		snap.QueueHistory = appendToHistory(m.snap.QueueHistory, float64(snap.Status.FeedbackQueued))
		snap.FeedbackHistory = appendToHistory(m.snap.FeedbackHistory, snap.FeedbackRate)
		snap.LatencyHistory = appendToHistory(m.snap.LatencyHistory, snap.LatencyP95*1000)

		m.snap = snap
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.err != nil {
		return m.renderError()
	}

	return m.renderDashboard()
}

// renderError renders the unreachable-daemon view.
func (m Model) renderError() string {
	header := headerStyle.Render(" flywheeld Monitor ")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach flywheeld") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.statusURL) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Please ensure:") + "\n"
	content += dimStyle.Render("  1. flywheeld is running") + "\n"
	content += dimStyle.Render("  2. the --addr flag points at its HTTP port") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

// renderDashboard renders the main dashboard view.
func (m Model) renderDashboard() string {
	var content string

	status := m.snap.Status

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}

	header := headerStyle.Render(" flywheeld Monitor ")
	headerLine := fmt.Sprintf("%s   %s %s   %s",
		runningBadge(status.Running),
		dimStyle.Render("Uptime:"),
		valueStyle.Render(FormatUptime(status.UptimeSeconds)),
		dimStyle.Render(lastUpdateStr))

	content += header + "\n"
	content += headerLine + "\n"

	// Feedback section
	content += "\n" + sectionStyle.Render("┃ Feedback") + "\n"

	queueSparkline := createSparkline(m.snap.QueueHistory)
	content += labelStyle.Render("  Queued: ") +
		valueStyle.Render(fmt.Sprintf("%d", status.FeedbackQueued)) +
		"   " + queueSparkline + "\n"

	if status.RetrainingVolume > 0 {
		fill := float64(status.FeedbackQueued) / float64(status.RetrainingVolume)
		if fill > 1.0 {
			fill = 1.0
		}
		content += labelStyle.Render("  Retrain at: ") +
			m.queueProgress.ViewAs(fill) +
			" " + dimStyle.Render(fmt.Sprintf("%d/%d", status.FeedbackQueued, status.RetrainingVolume)) + "\n"
	}

	content += labelStyle.Render("  Stored: ") +
		valueStyle.Render(fmt.Sprintf("%d", status.FeedbackStored)) +
		dimStyle.Render(" total") +
		"   " +
		labelStyle.Render("Ingest: ") +
		valueStyle.Render(FormatRate(m.snap.FeedbackRate)) + "\n"

	// Actions section
	content += "\n" + sectionStyle.Render("┃ Actions") + "\n"

	content += labelStyle.Render("  Pending: ") +
		valueStyle.Render(fmt.Sprintf("%d", status.ActionsPending)) +
		"   " +
		labelStyle.Render("Completed (7d): ") +
		valueStyle.Render(fmt.Sprintf("%d", status.ActionsCompleted7d)) +
		"   " +
		labelStyle.Render("Executed: ") +
		valueStyle.Render(fmt.Sprintf("%.1f/h", m.snap.ActionRate)) + "\n"

	if la := status.LastAnalysis; la != nil {
		line := fmt.Sprintf("%d entries, avg %s, %s, %d actions",
			la.BatchSize, FormatScore(la.AvgSatisfaction), la.Trend, la.ActionsGenerated)
		content += labelStyle.Render("  Last analysis: ") + valueStyle.Render(line)
		if la.QualityFlag {
			content += " " + warningStyle.Render("[quality]")
		}
		content += "\n"
	} else {
		content += labelStyle.Render("  Last analysis: ") + dimStyle.Render("none yet") + "\n"
	}

	// Serving baselines section
	content += "\n" + sectionStyle.Render("┃ Serving Baselines") + "\n"

	if len(status.Baselines) == 0 {
		content += dimStyle.Render("  no baselines established yet") + "\n"
	} else {
		names := make([]string, 0, len(status.Baselines))
		for name := range status.Baselines {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b := status.Baselines[name]
			content += labelStyle.Render(fmt.Sprintf("  %-18s", name)) +
				valueStyle.Render(FormatScore(b.BaselineValue)) +
				dimStyle.Render(" → ") +
				valueStyle.Render(FormatScore(b.CurrentValue)) +
				"  " + trendBadge(b.Trend) + "\n"
		}
	}

	// HTTP section
	content += "\n" + sectionStyle.Render("┃ HTTP") + "\n"

	latencyMS := m.snap.LatencyP95 * 1000
	latencySparkline := createSparkline(m.snap.LatencyHistory)
	content += labelStyle.Render("  Rate: ") +
		valueStyle.Render(FormatRate(m.snap.HTTPRate)) +
		"   " +
		labelStyle.Render("Latency (p95): ") +
		valueStyle.Render(FormatLatency(m.snap.LatencyP95)) +
		" " + latencyBadge(latencyMS) +
		"   " + latencySparkline + "\n"

	// Loops section
	content += "\n" + sectionStyle.Render("┃ Loops") + "\n"

	if len(status.Loops) == 0 {
		content += dimStyle.Render("  no loop status reported") + "\n"
	} else {
		for _, loop := range status.Loops {
			line := loopBadge(loop) + " " +
				labelStyle.Render(fmt.Sprintf("%-12s", loop.Name)) +
				dimStyle.Render("cycles=") + valueStyle.Render(fmt.Sprintf("%d", loop.Cycles)) +
				dimStyle.Render(" failures=") + valueStyle.Render(fmt.Sprintf("%d", loop.Failures))
			if loop.LastError != "" {
				line += "  " + warningStyle.Render(loop.LastError)
			}
			content += "  " + line + "\n"
		}
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))

	content += "\n" + footer

	return containerStyle.Render(content)
}
