package history

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"quickbench/internal/runid"
	"quickbench/internal/storage"
	"quickbench/internal/tui/styles"
)

// Columns of the run history, shared with the plain text listing.
var Columns = []table.Column{
	{Title: "Started", Width: 16},
	{Title: "Config", Width: 20},
	{Title: "Status", Width: 10},
	{Title: "VUs", Width: 5},
	{Title: "Duration", Width: 9},
	{Title: "Reqs", Width: 9},
	{Title: "Failed", Width: 8},
	{Title: "P95 ms", Width: 9},
	{Title: "File", Width: 48},
}

type Model struct {
	Store *storage.Store
	Table table.Model
	Err   error

	Width  int
	Height int
}

func NewModel(store *storage.Store) Model {
	t := table.New(
		table.WithColumns(Columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := Model{
		Store: store,
		Table: t,
	}
	m.Refresh()
	return m
}

// Rows renders run records as table rows, in the given order.
func Rows(items []storage.RunRecord) []table.Row {
	rows := make([]table.Row, len(items))
	for i, item := range items {
		rows[i] = table.Row{
			item.StartedAt.Local().Format("2006-01-02 15:04"),
			item.Label,
			string(item.Status),
			fmt.Sprintf("%d", item.VUs),
			runid.FormatDuration(item.Duration),
			fmt.Sprintf("%d", item.Summary.TotalRequests),
			fmt.Sprintf("%.2f%%", item.Summary.FailureRate()*100),
			fmt.Sprintf("%.2f", item.Summary.P95LatencyMs),
			filepath.Base(item.File),
		}
	}
	return rows
}

func (m *Model) Refresh() {
	items, err := m.Store.List()
	m.Err = err
	m.Table.SetRows(Rows(items))
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.Refresh()
			return m, nil
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	view := styles.Box.Render(m.Table.View())
	if m.Err != nil {
		view += "\n" + styles.Error.Render(m.Err.Error())
	}
	return view + "\n" + styles.RenderKey("r", "refresh") + "  " + styles.RenderKey("q", "quit") + "\n"
}
