package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Trackable latency range. Anything slower than the default request timeout
// by a wide margin lands in the top bucket.
const (
	minLatency = time.Microsecond
	maxLatency = 10 * time.Minute
)

// LatencyHistogram records request latencies at microsecond resolution
// with 3 significant figures. Safe for concurrent use.
type LatencyHistogram struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		hist: hdrhistogram.New(int64(minLatency/time.Microsecond), int64(maxLatency/time.Microsecond), 3),
	}
}

// Record adds one latency. Out-of-range values are clamped so every request
// is counted.
func (l *LatencyHistogram) Record(d time.Duration) {
	if d < minLatency {
		d = minLatency
	}
	if d > maxLatency {
		d = maxLatency
	}
	l.mu.Lock()
	l.hist.RecordValue(d.Microseconds())
	l.mu.Unlock()
}

// QuantileMs returns the latency at percentile q (0-100) in milliseconds.
func (l *LatencyHistogram) QuantileMs(q float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return usToMs(l.hist.ValueAtQuantile(q))
}

func (l *LatencyHistogram) MeanMs() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hist.Mean() / 1000.0
}

func (l *LatencyHistogram) MaxMs() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return usToMs(l.hist.Max())
}

func (l *LatencyHistogram) Count() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hist.TotalCount()
}

func usToMs(us int64) float64 {
	return float64(us) / 1000.0
}
