package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds real-time aggregated metrics of a run. It only feeds the
// live view and the end-of-run summary; the result file is the source of truth.
type Stats struct {
	Requests uint64
	Success  uint64
	Fail     uint64
	Bytes    uint64

	Latency *LatencyHistogram

	mu        sync.Mutex
	errCounts map[string]uint64
}

func NewStats() *Stats {
	return &Stats{
		Latency:   NewLatencyHistogram(),
		errCounts: make(map[string]uint64),
	}
}

// AddRequest records one finished request. reason is empty for successes.
func (s *Stats) AddRequest(success bool, bytes int64, latency time.Duration, reason string) {
	atomic.AddUint64(&s.Requests, 1)
	if success {
		atomic.AddUint64(&s.Success, 1)
	} else {
		atomic.AddUint64(&s.Fail, 1)
		if reason != "" {
			s.mu.Lock()
			s.errCounts[reason]++
			s.mu.Unlock()
		}
	}
	if bytes > 0 {
		atomic.AddUint64(&s.Bytes, uint64(bytes))
	}

	s.Latency.Record(latency)
}

func (s *Stats) ErrorRate() float64 {
	reqs := atomic.LoadUint64(&s.Requests)
	if reqs == 0 {
		return 0
	}
	fails := atomic.LoadUint64(&s.Fail)
	return (float64(fails) / float64(reqs)) * 100
}

// GetErrorCounts returns a copy of failure reasons and how often they occurred.
func (s *Stats) GetErrorCounts() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.errCounts))
	for k, v := range s.errCounts {
		out[k] = v
	}
	return out
}

func (s *Stats) GetP50() float64 { return s.Latency.QuantileMs(50) }
func (s *Stats) GetP90() float64 { return s.Latency.QuantileMs(90) }
func (s *Stats) GetP95() float64 { return s.Latency.QuantileMs(95) }
func (s *Stats) GetP99() float64 { return s.Latency.QuantileMs(99) }

// MaxMs returns the slowest recorded request in milliseconds.
func (s *Stats) MaxMs() float64 {
	return s.Latency.MaxMs()
}

// AvgMs returns the mean latency in milliseconds.
func (s *Stats) AvgMs() float64 {
	return s.Latency.MeanMs()
}
