package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"quickbench/internal/runid"
	"quickbench/internal/runner"
	"quickbench/internal/storage"
	"quickbench/internal/tui/live"
	"quickbench/internal/tui/result"
	"quickbench/internal/tui/styles"
)

// DoneMsg tells the model the run is over and the result file closed.
type DoneMsg struct {
	Record storage.RunRecord
	Errors map[string]uint64
}

// Model is the live view of a single benchmark run.
type Model struct {
	Cfg  runner.Config
	File string
	Live live.Model

	updates runner.StatsUpdateChan
	cancel  context.CancelFunc

	Stopping bool
	Done     *DoneMsg
}

// NewModel builds the view. cancel is invoked when the user interrupts the
// run; the view keeps rendering until DoneMsg arrives.
func NewModel(cfg runner.Config, file string, updates runner.StatsUpdateChan, cancel context.CancelFunc) Model {
	return Model{
		Cfg:     cfg,
		File:    file,
		Live:    live.NewModel(cfg.Duration),
		updates: updates,
		cancel:  cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

func waitForUpdate(ch runner.StatsUpdateChan) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return s
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.Done != nil {
				return m, tea.Quit
			}
			if !m.Stopping && m.cancel != nil {
				m.Stopping = true
				m.cancel()
			}
		}
		return m, nil

	case runner.StatsSnapshot:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		return m, tea.Batch(cmd, waitForUpdate(m.updates))

	case DoneMsg:
		m.Done = &msg
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.Live, cmd = m.Live.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Done != nil {
		return result.View(m.Done.Record, m.Done.Errors)
	}

	s := strings.Builder{}
	s.WriteString(styles.Title.Render("🍕 quickbench: " + m.Cfg.Label))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("Target: %s | VUs: %d | Duration: %s\n",
		m.Cfg.TargetURL(), m.Cfg.VUs, runid.FormatDuration(m.Cfg.Duration)))
	s.WriteString(styles.Subtle.Render("Writing " + m.File))
	s.WriteString("\n\n")

	s.WriteString(m.Live.View())
	s.WriteString("\n")
	if m.Stopping {
		s.WriteString(styles.Warn.Render("Stopping, waiting for in-flight requests..."))
	} else {
		s.WriteString(styles.RenderKey("q", "stop the run"))
	}
	s.WriteString("\n")
	return s.String()
}

// Program runs the live view next to a benchmark.
type Program struct {
	p      *tea.Program
	exited chan struct{}
	err    error
}

// Start launches the view in the background.
func Start(m Model, opts ...tea.ProgramOption) *Program {
	prog := &Program{
		p:      tea.NewProgram(m, opts...),
		exited: make(chan struct{}),
	}
	go func() {
		defer close(prog.exited)
		_, prog.err = prog.p.Run()
	}()
	return prog
}

// Finish shows the final result and waits for the view to exit.
func (p *Program) Finish(rec storage.RunRecord, errCounts map[string]uint64) error {
	p.p.Send(DoneMsg{Record: rec, Errors: errCounts})
	<-p.exited
	return p.err
}
