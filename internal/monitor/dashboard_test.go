package monitor

import (
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Status: StatusPayload{
			Running:            true,
			UptimeSeconds:      8100, // 2h 15m
			FeedbackQueued:     12,
			ActionsPending:     37,
			FeedbackStored:     1234,
			ActionsCompleted7d: 19,
			RetrainingVolume:   100,
			LastAnalysis: &AnalysisView{
				BatchSize:        50,
				AvgSatisfaction:  3.82,
				Trend:            "declining",
				QualityFlag:      true,
				ActionsGenerated: 2,
			},
			Baselines: map[string]BaselineView{
				"response_quality": {
					MetricName:    "response_quality",
					BaselineValue: 4.1,
					CurrentValue:  3.95,
					Trend:         "stable",
				},
			},
			Loops: []LoopView{
				{Name: "analysis", Running: true, Cycles: 12},
			},
		},
		FeedbackRate: 4.2,
		ActionRate:   1.5,
		HTTPRate:     45.7,
		LatencyP95:   0.0123,
	}
}

func TestNewModel(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)
	assert.Equal(t, "http://localhost:8093", model.statusURL)
	assert.Equal(t, "http://localhost:8428", model.metricsURL)
	assert.Equal(t, 5*time.Second, model.interval)
	assert.False(t, model.quitting)
}

func TestModel_Init(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)
	cmd := model.Init()

	// Init returns the tick command that starts auto-refresh.
	assert.NotNil(t, cmd)
}

func TestModel_Update_QuitKey(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)

	keyMsg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	updatedModel, cmd := model.Update(keyMsg)

	m := updatedModel.(Model)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_RefreshKey(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)

	keyMsg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}}
	updatedModel, cmd := model.Update(keyMsg)

	m := updatedModel.(Model)
	assert.False(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_TickMsg(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)

	msg := tickMsg(time.Now())
	updatedModel, cmd := model.Update(msg)

	m := updatedModel.(Model)
	assert.False(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_SnapshotMsg(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)

	updatedModel, cmd := model.Update(snapshotMsg(testSnapshot()))

	m := updatedModel.(Model)
	assert.True(t, m.snap.Status.Running)
	assert.Equal(t, 12, m.snap.Status.FeedbackQueued)
	assert.Equal(t, 45.7, m.snap.HTTPRate)
	assert.Equal(t, []float64{12}, m.snap.QueueHistory)
	assert.Equal(t, []float64{4.2}, m.snap.FeedbackHistory)
	assert.InDelta(t, 12.3, m.snap.LatencyHistory[0], 0.001)
	assert.False(t, m.lastUpdate.IsZero())
	assert.Nil(t, cmd)
}

func TestModel_Update_SnapshotMsg_CapsHistory(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)

	var current tea.Model = model
	for i := 0; i < historySize+10; i++ {
		snap := testSnapshot()
		snap.Status.FeedbackQueued = i
		current, _ = current.(Model).Update(snapshotMsg(snap))
	}

	m := current.(Model)
	assert.Len(t, m.snap.QueueHistory, historySize)
	// Oldest entries fall off the front.
	assert.Equal(t, float64(10), m.snap.QueueHistory[0])
}

func TestModel_Update_ErrMsg(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)

	msg := errMsg(fmt.Errorf("connection refused"))
	updatedModel, cmd := model.Update(msg)

	m := updatedModel.(Model)
	assert.NotNil(t, m.err)
	assert.Contains(t, m.err.Error(), "connection refused")
	assert.Nil(t, cmd)
}

func TestModel_Update_SnapshotClearsError(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)
	model.err = fmt.Errorf("connection refused")

	updatedModel, _ := model.Update(snapshotMsg(testSnapshot()))

	m := updatedModel.(Model)
	assert.Nil(t, m.err)
}

func TestModel_View_WithSnapshot(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)
	model.snap = testSnapshot()
	model.lastUpdate = time.Date(2026, 1, 1, 12, 34, 56, 0, time.UTC)

	view := model.View()

	assert.Contains(t, view, "flywheeld Monitor")
	assert.Contains(t, view, "RUNNING")
	assert.Contains(t, view, "2h 15m")
	assert.Contains(t, view, "12:34:56")

	assert.Contains(t, view, "Feedback")
	assert.Contains(t, view, "12/100")
	assert.Contains(t, view, "1234")
	assert.Contains(t, view, "4.2/min")

	assert.Contains(t, view, "Actions")
	assert.Contains(t, view, "37")
	assert.Contains(t, view, "19")
	assert.Contains(t, view, "1.5/h")
	assert.Contains(t, view, "50 entries, avg 3.82, declining, 2 actions")
	assert.Contains(t, view, "quality")

	assert.Contains(t, view, "Serving Baselines")
	assert.Contains(t, view, "response_quality")
	assert.Contains(t, view, "4.10")
	assert.Contains(t, view, "3.95")
	assert.Contains(t, view, "stable")

	assert.Contains(t, view, "HTTP")
	assert.Contains(t, view, "45.7/min")
	assert.Contains(t, view, "12.3ms")

	assert.Contains(t, view, "Loops")
	assert.Contains(t, view, "analysis")

	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_WithError(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)
	model.err = fmt.Errorf("connection refused")

	view := model.View()

	assert.Contains(t, view, "Cannot reach flywheeld")
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "http://localhost:8093")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_NoData(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)

	view := model.View()

	assert.Contains(t, view, "flywheeld Monitor")
	assert.Contains(t, view, "STOPPED")
	assert.Contains(t, view, "no baselines established yet")
	assert.Contains(t, view, "none yet")
	assert.Contains(t, view, "no loop status reported")
	assert.Contains(t, view, "[q]")
}

func TestModel_View_Quitting(t *testing.T) {
	model := NewModel("http://localhost:8093", "http://localhost:8428", 5*time.Second)
	model.quitting = true

	assert.Empty(t, model.View())
}
