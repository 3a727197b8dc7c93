package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickbench/internal/runner"
	"quickbench/internal/storage"
)

func testModel(cancel func()) Model {
	cfg := runner.Config{BaseURL: "http://localhost:3333", Label: "dedup", VUs: 20, Duration: time.Minute}
	return NewModel(cfg, "141025-quickpizza-dedup-20vus-60s-t3.medium.gz", make(runner.StatsUpdateChan, 1), cancel)
}

func TestModelQuitCancelsRun(t *testing.T) {
	cancelled := 0
	m := testModel(func() { cancelled++ })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Nil(t, cmd, "the view waits for the run to finish")
	m = next.(Model)
	assert.True(t, m.Stopping)
	assert.Contains(t, m.View(), "Stopping")

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, 1, cancelled)
}

func TestModelSnapshotUpdatesLiveView(t *testing.T) {
	m := testModel(nil)
	next, cmd := m.Update(runner.StatsSnapshot{Requests: 42, Success: 40, Fail: 2, P95Ms: 12.5})
	require.NotNil(t, cmd)
	m = next.(Model)
	assert.Equal(t, uint64(42), m.Live.Stats.Requests)
	view := m.View()
	assert.Contains(t, view, "REQ: 42")
	assert.Contains(t, view, "http://localhost:3333/api/pizza")
}

func TestModelDoneShowsResult(t *testing.T) {
	m := testModel(nil)
	rec := storage.RunRecord{
		Label:   "dedup",
		File:    "out.gz",
		Status:  storage.StatusCompleted,
		Summary: storage.RunSummary{TotalRequests: 10, Success: 8, Fail: 2, P95LatencyMs: 3},
	}
	next, cmd := m.Update(DoneMsg{Record: rec, Errors: map[string]uint64{"HTTP 500": 2}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	view := next.(Model).View()
	assert.Contains(t, view, "Run Complete")
	assert.Contains(t, view, "2 x HTTP 500")
	assert.Contains(t, view, "20.00%")
}
