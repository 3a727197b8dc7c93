package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"quickbench/internal/runner"
	"quickbench/internal/tui/components"
	"quickbench/internal/tui/styles"
)

// Model is the in-run panel: counters, sparklines and the deadline progress.
type Model struct {
	Stats    runner.StatsSnapshot
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	StartTime  time.Time
	Duration   time.Duration
	LastUpdate time.Time
	LastReqs   uint64

	Width  int
	Height int
}

func NewModel(totalDur time.Duration) Model {
	slRps := components.NewSparkline(
		40, 1,
		"RPS",
		styles.Active,
	)

	slLat := components.NewSparkline(
		40, 1,
		"Latency P95 (ms)",
		styles.Warn,
	)

	return Model{
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     slRps,
		LatencyLine: slLat,
		StartTime:   time.Now(),
		Duration:    totalDur,
		LastUpdate:  time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

// Percent is the share of the run window already elapsed.
func (m Model) Percent() float64 {
	if m.Duration <= 0 {
		return 1
	}
	pct := float64(time.Since(m.StartTime)) / float64(m.Duration)
	if pct > 1.0 {
		pct = 1.0
	}
	return pct
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.StatsSnapshot:
		now := time.Now()
		dt := now.Sub(m.LastUpdate).Seconds()
		if dt < 0.01 {
			dt = 0.01
		}

		rps := float64(msg.Requests-m.LastReqs) / dt
		m.RpsLine.Add(rps)
		m.LatencyLine.Add(msg.P95Ms)

		m.Stats = msg
		m.LastReqs = msg.Requests
		m.LastUpdate = now

		return m, m.Progress.SetPercent(m.Percent())

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4

		half := (msg.Width / 2) - 4
		if half < 10 {
			half = 10
		}
		m.RpsLine.Width = half
		m.LatencyLine.Width = half
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// Remaining is the time left until no new request may start.
func (m Model) Remaining() time.Duration {
	left := m.Duration - time.Since(m.StartTime)
	if left < 0 {
		return 0
	}
	return left.Round(time.Second)
}

func (m Model) View() string {
	s := strings.Builder{}

	reqs := m.Stats.Requests
	failRate := 0.0
	if reqs > 0 {
		failRate = (float64(m.Stats.Fail) / float64(reqs)) * 100
	}

	// Failures never stop a run, so only colour them.
	failStyle := styles.Active
	switch {
	case failRate > 5.0:
		failStyle = styles.Error
	case failRate > 1.0:
		failStyle = styles.Warn
	}

	counters := fmt.Sprintf("REQ: %d\nIN FLIGHT: %d", reqs, m.Stats.Inflight)
	checks := fmt.Sprintf("CHECKS OK: %d\nFAILED: %d (%.2f%%)", m.Stats.Success, m.Stats.Fail, failRate)
	window := fmt.Sprintf("LEFT: %s\nKB RECV: %d", m.Remaining(), m.Stats.Bytes/1024)
	if m.Remaining() == 0 && m.Stats.Inflight > 0 {
		window = fmt.Sprintf("DRAINING: %d\nKB RECV: %d", m.Stats.Inflight, m.Stats.Bytes/1024)
	}

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(counters),
		styles.Box.Render(failStyle.Render(checks)),
		styles.Box.Render(window),
	))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n\n")

	latencies := fmt.Sprintf(
		"http_req_duration  p50=%.2fms  p90=%.2fms  p95=%.2fms  p99=%.2fms  max=%.2fms",
		m.Stats.P50Ms,
		m.Stats.P90Ms,
		m.Stats.P95Ms,
		m.Stats.P99Ms,
		m.Stats.MaxMs,
	)
	box := styles.Box
	if m.Width > 8 {
		box = box.Width(m.Width - 4)
	}
	s.WriteString(box.Render(latencies))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())

	return s.String()
}
