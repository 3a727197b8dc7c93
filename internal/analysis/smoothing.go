package analysis

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DefaultWindow is the rolling window used when none is given.
const DefaultWindow = 50

// DefaultMinCount drops resample buckets holding fewer samples.
const DefaultMinCount = 3

// DefaultPolyOrder is the polynomial order of the Savitzky-Golay filter.
const DefaultPolyOrder = 3

var ErrPolyOrder = errors.New("polynomial order must be below the window")

// Rolling is a centered moving average over window points. Positions whose
// window would run past either end are dropped, so the result has
// len(s)-window+1 points.
func Rolling(s Series, window int) Series {
	if window <= 1 {
		return append(Series(nil), s...)
	}
	if len(s) < window {
		return nil
	}

	half := window / 2
	out := make(Series, 0, len(s)-window+1)
	var sum float64
	for i := 0; i < window; i++ {
		sum += s[i].Y
	}
	for lo := 0; ; lo++ {
		out = append(out, Point{X: s[lo+half].X, Y: sum / float64(window)})
		hi := lo + window
		if hi >= len(s) {
			break
		}
		sum += s[hi].Y - s[lo].Y
	}
	return out
}

// SavitzkyGolay replaces every point with the value of a least squares
// polynomial of the given order fitted to the window around it. Near the ends
// the fit uses the first or last full window, so the result keeps every
// point. An even window grows by one. Series not longer than the window fall
// back to a rolling average over min(10, len/2) points.
func SavitzkyGolay(s Series, window, order int) (Series, error) {
	if window%2 == 0 {
		window++
	}
	if len(s) <= window {
		return Rolling(s, min(10, len(s)/2)), nil
	}
	if order < 0 || order >= window {
		return nil, errors.Wrapf(ErrPolyOrder, "order %d, window %d", order, window)
	}

	half := window / 2
	vander := mat.NewDense(window, order+1, nil)
	for j := 0; j < window; j++ {
		x, v := float64(j-half), 1.0
		for m := 0; m <= order; m++ {
			vander.Set(j, m, v)
			v *= x
		}
	}
	ident := mat.NewDiagDense(window, nil)
	for j := 0; j < window; j++ {
		ident.SetDiag(j, 1)
	}
	// rows of pinv map a window to the polynomial coefficients
	var pinv mat.Dense
	if err := pinv.Solve(vander, ident); err != nil {
		return nil, errors.Wrap(err, "savitzky-golay fit")
	}

	// weights evaluates the fitted polynomial at offset t from the window center
	weights := func(t float64) []float64 {
		w := make([]float64, window)
		for j := range w {
			v := 1.0
			for m := 0; m <= order; m++ {
				w[j] += v * pinv.At(m, j)
				v *= t
			}
		}
		return w
	}
	apply := func(w []float64, from int) float64 {
		var y float64
		for j, c := range w {
			y += c * s[from+j].Y
		}
		return y
	}

	n := len(s)
	out := make(Series, n)
	center := weights(0)
	for i := half; i < n-half; i++ {
		out[i] = Point{X: s[i].X, Y: apply(center, i-half)}
	}
	for i := 0; i < half; i++ {
		out[i] = Point{X: s[i].X, Y: apply(weights(float64(i-half)), 0)}
		k := n - half + i
		out[k] = Point{X: s[k].X, Y: apply(weights(float64(i+1)), n-window)}
	}
	return out, nil
}

// Bucket aggregates the observations of one resample interval.
type Bucket struct {
	Start time.Time
	X     float64 // seconds since the first observation, may be negative
	Mean  float64
	Std   float64 // sample standard deviation, 0 for a single value
	Count int
}

// Resample groups observations into freq-wide buckets aligned on the unix
// epoch and keeps the buckets holding at least minCount values.
func Resample(obs []Observation, freq time.Duration, minCount int) []Bucket {
	if len(obs) == 0 || freq <= 0 {
		return nil
	}
	start := obs[0].Time

	var out []Bucket
	var cur []float64
	var curStart time.Time
	flush := func() {
		if len(cur) == 0 || len(cur) < minCount {
			return
		}
		b := Bucket{Start: curStart, X: curStart.Sub(start).Seconds(), Count: len(cur)}
		b.Mean, _ = stats.Mean(cur)
		if len(cur) > 1 {
			b.Std, _ = stats.StandardDeviationSample(cur)
		}
		out = append(out, b)
	}

	for _, o := range obs {
		bs := o.Time.Truncate(freq)
		if len(cur) > 0 && !bs.Equal(curStart) {
			flush()
			cur = cur[:0]
		}
		curStart = bs
		cur = append(cur, o.Value)
	}
	flush()
	return out
}

// BucketSeries returns the bucket means as a plottable series.
func BucketSeries(buckets []Bucket) Series {
	out := make(Series, len(buckets))
	for i, b := range buckets {
		out[i] = Point{X: b.X, Y: b.Mean}
	}
	return out
}

// BinnedCDF evaluates the empirical CDF at the centers of bins equal-width
// bins spanning the data, which flattens the steps of small samples.
func BinnedCDF(values []float64, bins int) Series {
	if len(values) == 0 || bins <= 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	width := (hi - lo) / float64(bins)

	out := make(Series, bins)
	n := float64(len(sorted))
	j := 0
	for i := 0; i < bins; i++ {
		center := lo + width*(float64(i)+0.5)
		for j < len(sorted) && sorted[j] <= center {
			j++
		}
		out[i] = Point{X: center, Y: float64(j) / n}
	}
	return out
}
