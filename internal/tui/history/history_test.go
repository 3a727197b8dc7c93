package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickbench/internal/storage"
)

func TestRows(t *testing.T) {
	rows := Rows([]storage.RunRecord{{
		Label:     "dedup",
		File:      "/out/141025-quickpizza-dedup-20vus-60s-t3.medium.gz",
		StartedAt: time.Now(),
		Status:    storage.StatusCompleted,
		VUs:       20,
		Duration:  time.Minute,
		Summary:   storage.RunSummary{TotalRequests: 200, Fail: 50, P95LatencyMs: 12.345},
	}})
	require.Len(t, rows, 1)
	assert.Len(t, rows[0], len(Columns))
	assert.Equal(t, "dedup", rows[0][1])
	assert.Equal(t, "completed", rows[0][2])
	assert.Equal(t, "60s", rows[0][4])
	assert.Equal(t, "25.00%", rows[0][6])
	assert.Equal(t, "12.35", rows[0][7])
	assert.Equal(t, "141025-quickpizza-dedup-20vus-60s-t3.medium.gz", rows[0][8])
}

func TestModelLoadsStore(t *testing.T) {
	s, err := storage.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Save(&storage.RunRecord{Label: "baseline", Status: storage.StatusFailed}))

	m := NewModel(s)
	assert.NoError(t, m.Err)
	require.Len(t, m.Table.Rows(), 1)
	assert.Equal(t, "baseline", m.Table.Rows()[0][1])
	assert.Contains(t, m.View(), "<q> quit")
}
