package storage

import (
	"time"
)

type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// RunRecord indexes one result file produced by `quickbench run`.
type RunRecord struct {
	ID         string        `json:"id"`
	File       string        `json:"file"`
	Label      string        `json:"label"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Status     RunStatus     `json:"status"`
	Error      string        `json:"error,omitempty"`
	VUs        int           `json:"vus"`
	Duration   time.Duration `json:"duration"`
	Hardware   string        `json:"hardware"`
	BaseURL    string        `json:"base_url"`
	Summary    RunSummary    `json:"summary"`
}

type RunSummary struct {
	TotalRequests uint64  `json:"total_requests"`
	Success       uint64  `json:"success"`
	Fail          uint64  `json:"fail"`
	Samples       uint64  `json:"samples"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
}

// FailureRate is the share of failed requests, 0 for an empty run.
func (s RunSummary) FailureRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.Fail) / float64(s.TotalRequests)
}
