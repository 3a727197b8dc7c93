package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestSparklineKeepsWindow(t *testing.T) {
	s := NewSparkline(3, 1, "RPS", lipgloss.NewStyle())
	for _, v := range []float64{10, 20, 30, 5} {
		s.Add(v)
	}
	assert.Equal(t, []float64{20, 30, 5}, s.Data)
	assert.Equal(t, 30.0, s.Max)
	assert.Equal(t, 5.0, s.Last())
}

func TestSparklineView(t *testing.T) {
	s := NewSparkline(4, 1, "RPS", lipgloss.NewStyle())
	s.Add(0)
	s.Add(8)
	view := s.View()
	assert.True(t, strings.HasPrefix(view, "RPS  8.0\n"))
	assert.Contains(t, view, "█")

	s.Width = 0
	assert.Equal(t, "", s.View())
}
