package result

import (
	"fmt"
	"sort"
	"strings"

	"quickbench/internal/storage"
	"quickbench/internal/tui/styles"
)

// View renders the end-of-run card shown when the live view exits.
func View(rec storage.RunRecord, errCounts map[string]uint64) string {
	s := strings.Builder{}

	title := "📊 Run Complete"
	switch rec.Status {
	case storage.StatusFailed:
		title = "❌ Run Failed"
	case storage.StatusCancelled:
		title = "⏹  Run Cancelled"
	}
	s.WriteString(styles.Title.Render(title))
	s.WriteString("  ")
	s.WriteString(styles.Status(string(rec.Status)).Render(string(rec.Status)))
	s.WriteString("\n\n")

	s.WriteString(styles.Active.Render("Overview"))
	s.WriteString("\n")
	sum := rec.Summary
	overview := fmt.Sprintf(
		"Config:         %s\nResult file:    %s\nTotal Requests: %d\nSuccess:        %d\nFailed:         %d (%.2f%%)\nSamples:        %d",
		rec.Label, rec.File, sum.TotalRequests, sum.Success, sum.Fail, sum.FailureRate()*100, sum.Samples,
	)
	s.WriteString(styles.Box.Render(overview))
	s.WriteString("\n\n")

	s.WriteString(styles.Active.Render("Latency"))
	s.WriteString("\n")
	latency := fmt.Sprintf(
		"Avg: %.2f ms\nP95: %.2f ms\nP99: %.2f ms",
		sum.AvgLatencyMs, sum.P95LatencyMs, sum.P99LatencyMs,
	)
	s.WriteString(styles.Box.Render(latency))

	if len(errCounts) > 0 {
		s.WriteString("\n\n")
		s.WriteString(styles.Error.Render("Failures"))
		s.WriteString("\n")
		s.WriteString(styles.Box.Render(failureLines(errCounts)))
	}
	if rec.Error != "" {
		s.WriteString("\n\n")
		s.WriteString(styles.Error.Render(rec.Error))
	}
	s.WriteString("\n")

	return s.String()
}

// failureLines lists failure reasons, most frequent first.
func failureLines(errCounts map[string]uint64) string {
	reasons := make([]string, 0, len(errCounts))
	for r := range errCounts {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if errCounts[reasons[i]] != errCounts[reasons[j]] {
			return errCounts[reasons[i]] > errCounts[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	lines := make([]string, len(reasons))
	for i, r := range reasons {
		lines[i] = fmt.Sprintf("%d x %s", errCounts[r], r)
	}
	return strings.Join(lines, "\n")
}
