package analysis

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickbench/internal/sink"
)

var base = time.Date(2025, 10, 14, 12, 0, 0, 0, time.UTC)

// writeRun records one request every 10ms for the given number of requests,
// latency growing 1ms per request, every fourth request failing.
func writeRun(t *testing.T, name string, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	s, err := sink.Create(path)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * 10 * time.Millisecond)
		failed := 0.0
		check := 1.0
		if i%4 == 3 {
			failed, check = 1, 0
		}
		require.NoError(t, s.Write(context.Background(),
			sink.Sample{Metric: sink.MetricHTTPReqs, Time: ts, Value: 1},
			sink.Sample{Metric: sink.MetricHTTPReqDuration, Time: ts, Value: float64(i + 1)},
			sink.Sample{Metric: sink.MetricHTTPReqFailed, Time: ts, Value: failed},
			sink.Sample{Metric: sink.MetricChecks, Time: ts, Value: check},
		))
	}
	require.NoError(t, s.Close())
	return path
}

func TestLoadParsesName(t *testing.T) {
	path := writeRun(t, "141025-quickpizza-dedup-20vus-60s-t3.medium.gz", 10)
	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dedup", d.Config())
	assert.Len(t, d.Samples, 40)

	other := writeRun(t, "adhoc.gz", 1)
	d, err = Load(other)
	require.NoError(t, err)
	assert.Equal(t, "adhoc", d.Config())
}

func TestDurationsRoundTrip(t *testing.T) {
	d, err := Load(writeRun(t, "run.gz", 100))
	require.NoError(t, err)

	obs := d.Durations()
	require.Len(t, obs, 100)
	for i, o := range obs {
		assert.Equal(t, float64(i+1), o.Value)
		assert.True(t, o.Time.Equal(base.Add(time.Duration(i)*10*time.Millisecond)))
	}

	s := Relative(obs)
	assert.Equal(t, 0.0, s[0].X)
	assert.InDelta(t, 0.99, s[99].X, 1e-9)
}

func TestRequestsPerSecond(t *testing.T) {
	// 250 requests at 10ms spacing: 100, 100, 50.
	d, err := Load(writeRun(t, "run.gz", 250))
	require.NoError(t, err)

	rps := d.RequestsPerSecond()
	require.Len(t, rps, 3)
	assert.Equal(t, []float64{100, 100, 50}, RPSValues(rps))
	assert.True(t, rps[0].Second.Equal(base))
}

func TestCDFWithDuplicates(t *testing.T) {
	cdf := CDF([]float64{3, 1, 2, 2})
	assert.Equal(t, Series{{1, 0.25}, {2, 0.5}, {2, 0.75}, {3, 1}}, cdf)
	assert.Empty(t, CDF(nil))
}

func TestSummarize(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}
	s, err := Summarize(values)
	require.NoError(t, err)
	assert.Equal(t, 100, s.Count)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 100.0, s.Max)
	assert.Equal(t, 50.5, s.Mean)
	assert.InDelta(t, 50.5, s.P50, 1e-9)
	assert.InDelta(t, 95.05, s.P95, 1e-9)
	assert.InDelta(t, 99.01, s.P99, 1e-9)

	_, err = Summarize(nil)
	assert.Equal(t, ErrNoData, err)

	one, err := Summarize([]float64{7})
	require.NoError(t, err)
	assert.Equal(t, 7.0, one.P99)
}

func TestPercentileInterpolates(t *testing.T) {
	values := []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	tests := []struct {
		pct  float64
		want float64
	}{
		{50, 5.5},
		{95, 9.55},
		{99, 9.91},
		{100, 10},
	}
	for _, tt := range tests {
		p, err := Percentile(values, tt.pct)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, p, 1e-9, "P%v", tt.pct)
	}
	assert.Equal(t, 10.0, values[0], "input is left unsorted")

	_, err := Percentile(values, 0)
	assert.Equal(t, ErrPercentile, errors.Cause(err))
	_, err = Percentile(values, 101)
	assert.Equal(t, ErrPercentile, errors.Cause(err))
}

func TestPercentileEmpty(t *testing.T) {
	p, err := Percentile(nil, 95)
	assert.Equal(t, ErrNoData, err)
	assert.True(t, math.IsNaN(p))
}

func TestReport(t *testing.T) {
	d, err := Load(writeRun(t, "141025-quickpizza-dedup-20vus-60s-t3.medium.gz", 200))
	require.NoError(t, err)

	r, err := d.Report()
	require.NoError(t, err)
	assert.Equal(t, "dedup", r.Config)
	assert.Equal(t, 200, r.Requests)
	assert.Equal(t, 0.25, r.FailureRate)
	assert.Equal(t, 0.75, r.CheckRate)
	assert.Equal(t, 200.0, r.Duration.Max)
	assert.Equal(t, 100.0, r.RPS.Mean)
	assert.Equal(t, 1990*time.Millisecond, r.Span)
}

func TestReportEmptyRun(t *testing.T) {
	d, err := Load(writeRun(t, "empty.gz", 0))
	require.NoError(t, err)
	_, err = d.Report()
	assert.Equal(t, ErrNoData, errors.Cause(err))
}

func TestRolling(t *testing.T) {
	s := Series{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}}

	got := Rolling(s, 3)
	assert.Equal(t, Series{{1, 2}, {2, 3}, {3, 4}}, got)

	assert.Equal(t, s, Rolling(s, 1))
	assert.Nil(t, Rolling(s, 6))
	assert.Len(t, Rolling(s, 5), 1)
}

func TestSavitzkyGolayKeepsCubics(t *testing.T) {
	var s Series
	for i := 0; i < 30; i++ {
		x := float64(i) / 4
		s = append(s, Point{X: x, Y: x*x*x - 2*x*x + 3})
	}
	got, err := SavitzkyGolay(s, 7, 3)
	require.NoError(t, err)
	require.Len(t, got, len(s))
	for i := range s {
		assert.Equal(t, s[i].X, got[i].X)
		assert.InDelta(t, s[i].Y, got[i].Y, 1e-6, "point %d", i)
	}
}

func TestSavitzkyGolayDampsNoise(t *testing.T) {
	var s Series
	for i := 0; i < 40; i++ {
		y := 5.0
		if i%2 == 0 {
			y += 1
		} else {
			y -= 1
		}
		s = append(s, Point{X: float64(i), Y: y})
	}
	// an even window grows to 11
	got, err := SavitzkyGolay(s, 10, 3)
	require.NoError(t, err)
	for i := 5; i < len(got)-5; i++ {
		assert.InDelta(t, 5.0, got[i].Y, 0.2, "point %d", i)
	}
}

func TestSavitzkyGolayShortAndInvalid(t *testing.T) {
	s := Series{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}}
	got, err := SavitzkyGolay(s, 51, 3)
	require.NoError(t, err)
	assert.Equal(t, Rolling(s, 3), got)

	long := make(Series, 20)
	_, err = SavitzkyGolay(long, 5, 5)
	assert.Equal(t, ErrPolyOrder, errors.Cause(err))
}

func TestResample(t *testing.T) {
	start := base.Add(500 * time.Millisecond)
	var obs []Observation
	// bucket 12:00:00 gets 5 values, 12:00:01 gets 2, 12:00:02 gets 3
	for i, v := range []float64{1, 2, 3, 4, 5} {
		obs = append(obs, Observation{Time: start.Add(time.Duration(i) * 50 * time.Millisecond), Value: v})
	}
	obs = append(obs,
		Observation{Time: base.Add(1100 * time.Millisecond), Value: 100},
		Observation{Time: base.Add(1200 * time.Millisecond), Value: 100},
	)
	for _, v := range []float64{10, 20, 30} {
		obs = append(obs, Observation{Time: base.Add(2 * time.Second), Value: v})
	}

	buckets := Resample(obs, time.Second, DefaultMinCount)
	require.Len(t, buckets, 2)

	assert.True(t, buckets[0].Start.Equal(base))
	assert.Equal(t, -0.5, buckets[0].X)
	assert.Equal(t, 3.0, buckets[0].Mean)
	assert.InDelta(t, math.Sqrt(2.5), buckets[0].Std, 1e-9)
	assert.Equal(t, 5, buckets[0].Count)

	assert.Equal(t, 1.5, buckets[1].X)
	assert.Equal(t, 20.0, buckets[1].Mean)
	assert.Equal(t, 3, buckets[1].Count)

	assert.Len(t, Resample(obs, time.Second, 1), 3)
	assert.Equal(t, Series{{-0.5, 3}, {1.5, 20}}, BucketSeries(buckets))
}

func TestParseSize(t *testing.T) {
	for in, want := range map[string]float64{
		"120.1 MiB": 120.1,
		"1.5 GiB":   1536,
		"512 KiB":   0.5,
		"42":        42,
	} {
		got, err := ParseSize(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
	_, err := ParseSize("lots")
	assert.Equal(t, ErrBadSize, errors.Cause(err))
}

func TestCleanConfigName(t *testing.T) {
	assert.Equal(t, "Default Collector", CleanConfigName("quickpizza-default-collector-bucket"))
	assert.Equal(t, "Custom gRPC", CleanConfigName("quickpizza-custom-grpc-bucket"))
	assert.Equal(t, "Custom gRPC+gzip", CleanConfigName("custom-grcp-gzip"))
	assert.Equal(t, "Dedup-Processor", CleanConfigName("dedup-processor"))
}

const storageCSV = `configuration,total size,total objects
quickpizza-default-collector-bucket,120.0 MiB,1000
quickpizza-custom-grpc-bucket,12.0 MiB,1500
quickpizza-http-json-bucket,1.2 GiB,500
`

func TestReadStorage(t *testing.T) {
	rows, err := ReadStorage(strings.NewReader(storageCSV))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Custom HTTP-JSON", rows[0].Name)
	assert.InDelta(t, 1228.8, rows[0].SizeMiB, 1e-9)
	assert.InDelta(t, -924, rows[0].Savings, 1e-9)
	assert.InDelta(t, -50, rows[0].ObjectChange, 1e-9)

	assert.True(t, rows[1].Baseline())
	assert.Equal(t, 0.0, rows[1].Savings)

	assert.Equal(t, "Custom gRPC", rows[2].Name)
	assert.InDelta(t, 90, rows[2].Savings, 1e-9)
	assert.InDelta(t, 50, rows[2].ObjectChange, 1e-9)
}

func TestReadStorageErrors(t *testing.T) {
	_, err := ReadStorage(strings.NewReader("configuration,total size,total objects\ncustom-grpc,1 MiB,3\n"))
	assert.Equal(t, ErrNoBaseline, err)

	_, err = ReadStorage(strings.NewReader("configuration,size\n"))
	assert.Error(t, err)

	_, err = ReadStorage(strings.NewReader("configuration,total size,total objects\ndefault-collector,big,3\n"))
	assert.Equal(t, ErrBadSize, errors.Cause(err))
}

func TestBinnedCDF(t *testing.T) {
	got := BinnedCDF([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 10}, 5)
	require.Len(t, got, 5)
	assert.Equal(t, Point{1, 0.2}, got[0])
	assert.Equal(t, Point{9, 0.9}, got[4])
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Y, got[i-1].Y)
	}
	assert.Nil(t, BinnedCDF(nil, 10))
}

func TestMonthlyCost(t *testing.T) {
	r := StorageRow{SizeMiB: 2048}
	assert.InDelta(t, 0.046, r.MonthlyCost(DefaultCostPerGB), 1e-12)
}
