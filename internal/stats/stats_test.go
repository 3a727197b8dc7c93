package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddRequestCounters(t *testing.T) {
	s := NewStats()
	s.AddRequest(true, 100, 10*time.Millisecond, "")
	s.AddRequest(false, 0, 20*time.Millisecond, "HTTP 500")
	s.AddRequest(false, 0, 30*time.Millisecond, "HTTP 500")
	s.AddRequest(false, 0, time.Millisecond, "connection refused")

	assert.Equal(t, uint64(4), s.Requests)
	assert.Equal(t, uint64(1), s.Success)
	assert.Equal(t, uint64(3), s.Fail)
	assert.Equal(t, uint64(100), s.Bytes)
	assert.InDelta(t, 75.0, s.ErrorRate(), 0.001)
	assert.Equal(t, map[string]uint64{"HTTP 500": 2, "connection refused": 1}, s.GetErrorCounts())
}

func TestErrorRateEmpty(t *testing.T) {
	assert.Equal(t, 0.0, NewStats().ErrorRate())
}

func TestQuantiles(t *testing.T) {
	s := NewStats()
	for i := 1; i <= 100; i++ {
		s.AddRequest(true, 0, time.Duration(i)*time.Millisecond, "")
	}

	assert.InDelta(t, 50.0, s.GetP50(), 0.1)
	assert.InDelta(t, 95.0, s.GetP95(), 0.1)
	assert.InDelta(t, 99.0, s.GetP99(), 0.1)
	assert.InDelta(t, 100.0, s.MaxMs(), 0.1)
	assert.InDelta(t, 50.5, s.AvgMs(), 0.1)
}

func TestConcurrentAdds(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.AddRequest(i%2 == 0, 1, time.Millisecond, "odd")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(4000), s.Requests)
	assert.Equal(t, uint64(2000), s.Fail)
	assert.Equal(t, int64(4000), s.Latency.Count())
	assert.Equal(t, uint64(2000), s.GetErrorCounts()["odd"])
}

func TestHistogramClampsOutOfRange(t *testing.T) {
	h := NewLatencyHistogram()
	h.Record(0)
	h.Record(time.Hour)
	assert.Equal(t, int64(2), h.Count())
	assert.InDelta(t, 0.001, h.QuantileMs(0), 0.0001)
	assert.InDelta(t, float64(maxLatency/time.Millisecond), h.MaxMs(), 1000)
}
