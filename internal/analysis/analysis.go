// Package analysis reads result files back and derives the series the charts
// and the analyze command are built from. Nothing here runs during a
// benchmark; files are only read once the run closed them.
package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"quickbench/internal/runid"
	"quickbench/internal/sink"
)

var ErrNoData = errors.New("no samples for metric")

var ErrPercentile = errors.New("percentile out of range")

// Dataset is one loaded result file.
type Dataset struct {
	File    string
	Info    runid.Info
	Samples []sink.Sample
}

// Observation is a single timed metric value.
type Observation struct {
	Time  time.Time
	Value float64
}

// Point is an (x, y) pair ready for plotting.
type Point struct {
	X, Y float64
}

type Series []Point

func Load(path string) (*Dataset, error) {
	samples, err := sink.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, _ := runid.Parse(path)
	return &Dataset{File: path, Info: info, Samples: samples}, nil
}

// Config is the label charts are titled with.
func (d *Dataset) Config() string {
	return d.Info.Label
}

// Observations returns the values of one metric ordered by time. Rows with
// equal timestamps keep file order.
func (d *Dataset) Observations(metric string) []Observation {
	var obs []Observation
	for _, s := range d.Samples {
		if s.Metric == metric {
			obs = append(obs, Observation{Time: s.Time, Value: s.Value})
		}
	}
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Time.Before(obs[j].Time) })
	return obs
}

// Durations is http_req_duration in ms against seconds since the first request.
func (d *Dataset) Durations() []Observation {
	return d.Observations(sink.MetricHTTPReqDuration)
}

// Relative turns observations into a series whose x axis is seconds elapsed
// since the first observation.
func Relative(obs []Observation) Series {
	if len(obs) == 0 {
		return nil
	}
	start := obs[0].Time
	out := make(Series, len(obs))
	for i, o := range obs {
		out[i] = Point{X: o.Time.Sub(start).Seconds(), Y: o.Value}
	}
	return out
}

func Values(obs []Observation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Value
	}
	return out
}

// SecondCount is the number of requests whose timestamp falls in one second.
type SecondCount struct {
	Second time.Time
	Count  int
}

// RequestsPerSecond counts http_reqs rows per floored unix second. Seconds
// without any request are absent, matching a group-by on the data.
func (d *Dataset) RequestsPerSecond() []SecondCount {
	counts := map[int64]int{}
	for _, s := range d.Samples {
		if s.Metric != sink.MetricHTTPReqs {
			continue
		}
		counts[s.Time.Unix()]++
	}
	out := make([]SecondCount, 0, len(counts))
	for sec, n := range counts {
		out = append(out, SecondCount{Second: time.Unix(sec, 0).UTC(), Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Second.Before(out[j].Second) })
	return out
}

func RPSValues(counts []SecondCount) []float64 {
	out := make([]float64, len(counts))
	for i, c := range counts {
		out[i] = float64(c.Count)
	}
	return out
}

// CDF is the empirical cumulative distribution: sorted values against i/n.
// Duplicate values yield several points at the same x.
func CDF(values []float64) Series {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := float64(len(sorted))
	out := make(Series, len(sorted))
	for i, v := range sorted {
		out[i] = Point{X: v, Y: float64(i+1) / n}
	}
	return out
}

// Summary describes a distribution of values.
type Summary struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	P50   float64
	P95   float64
	P99   float64
}

func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrNoData
	}
	data := stats.Float64Data(values)
	s := Summary{Count: len(values)}
	var err error
	if s.Min, err = data.Min(); err != nil {
		return Summary{}, errors.Wrap(err, "min")
	}
	if s.Max, err = data.Max(); err != nil {
		return Summary{}, errors.Wrap(err, "max")
	}
	if s.Mean, err = data.Mean(); err != nil {
		return Summary{}, errors.Wrap(err, "mean")
	}
	for _, q := range []struct {
		pct float64
		dst *float64
	}{{50, &s.P50}, {95, &s.P95}, {99, &s.P99}} {
		if *q.dst, err = Percentile(values, q.pct); err != nil {
			return Summary{}, err
		}
	}
	return s, nil
}

// Percentile returns the pct-th percentile (0 < pct <= 100), interpolating
// linearly between the two closest ranks like pandas' quantile does.
func Percentile(values []float64, pct float64) (float64, error) {
	if len(values) == 0 {
		return math.NaN(), ErrNoData
	}
	if pct <= 0 || pct > 100 || math.IsNaN(pct) {
		return math.NaN(), errors.Wrapf(ErrPercentile, "%v", pct)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := float64(len(sorted)-1) * pct / 100
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac, nil
}

// Report is what `quickbench analyze` prints.
type Report struct {
	Config      string
	Requests    int
	FailureRate float64
	CheckRate   float64
	Duration    Summary
	RPS         Summary
	Span        time.Duration
}

func (d *Dataset) Report() (Report, error) {
	r := Report{Config: d.Config()}

	durations := d.Durations()
	if len(durations) == 0 {
		return r, errors.Wrap(ErrNoData, sink.MetricHTTPReqDuration)
	}
	var err error
	if r.Duration, err = Summarize(Values(durations)); err != nil {
		return r, err
	}
	r.Span = durations[len(durations)-1].Time.Sub(durations[0].Time)

	rps := d.RequestsPerSecond()
	for _, c := range rps {
		r.Requests += c.Count
	}
	if len(rps) > 0 {
		if r.RPS, err = Summarize(RPSValues(rps)); err != nil {
			return r, err
		}
	}

	r.FailureRate = rate(d.Observations(sink.MetricHTTPReqFailed))
	r.CheckRate = rate(d.Observations(sink.MetricChecks))
	return r, nil
}

func rate(obs []Observation) float64 {
	if len(obs) == 0 {
		return 0
	}
	m, _ := stats.Mean(Values(obs))
	return m
}
