// Package charts renders analysis output to PNG files with gonum/plot.
package charts

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"quickbench/internal/analysis"
)

// Smoothing methods for the request time series.
const (
	SmoothNone     = "none"
	SmoothRolling  = "rolling"
	SmoothResample = "resample"
	SmoothBoth     = "both"
	SmoothSavGol   = "savgol"
	SmoothBinned   = "binned" // RPS CDF only
)

var ErrUnknownSmoothing = errors.New("unknown smoothing method")

var (
	darkBlue  = color.RGBA{0, 0, 139, 255}
	lightBlue = color.RGBA{173, 216, 230, 120}
	orange    = color.RGBA{255, 165, 0, 255}
	red       = color.RGBA{220, 20, 60, 255}
	green     = color.RGBA{34, 139, 34, 200}

	dashed = []vg.Length{vg.Points(6), vg.Points(3)}
	dotted = []vg.Length{vg.Points(2), vg.Points(2)}
)

type TimesOptions struct {
	Smooth   string
	Window   int
	Freq     time.Duration
	MinCount int
}

// RequestTimesFile is the output name for a request time chart.
func RequestTimesFile(dir, config, smooth string) string {
	if smooth == "" || smooth == SmoothNone {
		return filepath.Join(dir, fmt.Sprintf("request_times_%s.png", config))
	}
	return filepath.Join(dir, fmt.Sprintf("request_times_%s_smooth_%s.png", config, smooth))
}

// RPSCDFFile is the output name for an RPS CDF chart of the given result file.
func RPSCDFFile(dir, resultFile, smooth string) string {
	base := filepath.Base(resultFile)
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, ".csv")
	if smooth == "" || smooth == SmoothNone {
		return filepath.Join(dir, base+"_rps_cdf.png")
	}
	return filepath.Join(dir, base+"_rps_cdf_smooth_"+smooth+".png")
}

// RequestTimes plots http_req_duration over the run with P95, P99 and
// average reference lines.
func RequestTimes(d *analysis.Dataset, opts TimesOptions, out string) (analysis.Summary, error) {
	obs := d.Durations()
	if len(obs) == 0 {
		return analysis.Summary{}, errors.Wrap(analysis.ErrNoData, "http_req_duration")
	}
	sum, err := analysis.Summarize(analysis.Values(obs))
	if err != nil {
		return sum, err
	}
	if opts.Window <= 0 {
		opts.Window = analysis.DefaultWindow
	}
	if opts.Freq <= 0 {
		opts.Freq = time.Second
	}
	if opts.MinCount <= 0 {
		opts.MinCount = analysis.DefaultMinCount
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("HTTP Request Duration Time Series - %s", d.Config())
	p.X.Label.Text = "Time (seconds)"
	p.Y.Label.Text = "HTTP Request Duration (ms)"
	p.Add(plotter.NewGrid())

	raw := analysis.Relative(obs)
	switch opts.Smooth {
	case "", SmoothNone:
		if err := addLine(p, raw, darkBlue, 1, "Request Duration"); err != nil {
			return sum, err
		}
	case SmoothRolling:
		if err := addLine(p, analysis.Rolling(raw, opts.Window), darkBlue, 2,
			fmt.Sprintf("Rolling Average (%d points)", opts.Window)); err != nil {
			return sum, err
		}
	case SmoothBoth:
		if err := addLine(p, raw, lightBlue, 0.5, "Raw Data"); err != nil {
			return sum, err
		}
		if err := addLine(p, analysis.Rolling(raw, opts.Window), darkBlue, 2,
			fmt.Sprintf("Rolling Average (%d points)", opts.Window)); err != nil {
			return sum, err
		}
	case SmoothSavGol:
		fit, err := analysis.SavitzkyGolay(raw, opts.Window, analysis.DefaultPolyOrder)
		if err != nil {
			return sum, err
		}
		if err := addLine(p, fit, darkBlue, 2,
			fmt.Sprintf("Savitzky-Golay Filter (%d window)", opts.Window)); err != nil {
			return sum, err
		}
	case SmoothResample:
		buckets := analysis.Resample(obs, opts.Freq, opts.MinCount)
		if err := addErrorBars(p, buckets, fmt.Sprintf("Resampled (%s buckets)", opts.Freq)); err != nil {
			return sum, err
		}
	default:
		return sum, errors.Wrapf(ErrUnknownSmoothing, "%q", opts.Smooth)
	}

	for _, ref := range []struct {
		v      float64
		c      color.Color
		dashes []vg.Length
		label  string
	}{
		{sum.P95, orange, dashed, fmt.Sprintf("P95: %.1fms", sum.P95)},
		{sum.P99, red, dotted, fmt.Sprintf("P99: %.1fms", sum.P99)},
		{sum.Mean, green, nil, fmt.Sprintf("Average: %.1fms", sum.Mean)},
	} {
		v := ref.v
		fn := plotter.NewFunction(func(float64) float64 { return v })
		fn.Color = ref.c
		fn.Width = vg.Points(2)
		fn.Dashes = ref.dashes
		p.Add(fn)
		p.Legend.Add(ref.label, fn)
	}
	p.Legend.Top = true

	return sum, save(p, 14*vg.Inch, 8*vg.Inch, out)
}

// RPSCDF plots the distribution of per-second request counts with P50, P95
// and P99 markers. smooth may be none or binned.
func RPSCDF(d *analysis.Dataset, smooth string, bins int, out string) (analysis.Summary, error) {
	rps := analysis.RPSValues(d.RequestsPerSecond())
	if len(rps) == 0 {
		return analysis.Summary{}, errors.Wrap(analysis.ErrNoData, "http_reqs")
	}
	sum, err := analysis.Summarize(rps)
	if err != nil {
		return sum, err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("CDF of Requests per Second - %s", d.Config())
	p.X.Label.Text = "Requests per Second"
	p.Y.Label.Text = "Cumulative Probability"
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	switch smooth {
	case "", SmoothNone:
		if err := addLine(p, analysis.CDF(rps), darkBlue, 2, "CDF"); err != nil {
			return sum, err
		}
	case SmoothBinned, SmoothBoth:
		if bins <= 0 {
			bins = int(math.Max(20, float64(len(rps))/2))
		}
		if smooth == SmoothBoth {
			if err := addLine(p, analysis.CDF(rps), lightBlue, 1, "Raw CDF"); err != nil {
				return sum, err
			}
		}
		if err := addLine(p, analysis.BinnedCDF(rps, bins), darkBlue, 2.5,
			fmt.Sprintf("Binned CDF (%d bins)", bins)); err != nil {
			return sum, err
		}
	default:
		return sum, errors.Wrapf(ErrUnknownSmoothing, "%q", smooth)
	}

	for _, ref := range []struct {
		v      float64
		c      color.Color
		dashes []vg.Length
		label  string
	}{
		{sum.P50, green, nil, fmt.Sprintf("P50: %.1f RPS", sum.P50)},
		{sum.P95, orange, dashed, fmt.Sprintf("P95: %.1f RPS", sum.P95)},
		{sum.P99, red, dotted, fmt.Sprintf("P99: %.1f RPS", sum.P99)},
	} {
		l, err := plotter.NewLine(plotter.XYs{{X: ref.v, Y: 0}, {X: ref.v, Y: 1}})
		if err != nil {
			return sum, errors.Wrap(err, "percentile marker")
		}
		l.Color = ref.c
		l.Width = vg.Points(1.5)
		l.Dashes = ref.dashes
		p.Add(l)
		p.Legend.Add(ref.label, l)
	}
	p.Legend.Top = true
	p.Legend.Left = true

	return sum, save(p, 12*vg.Inch, 8*vg.Inch, out)
}

func addLine(p *plot.Plot, s analysis.Series, c color.Color, width float64, label string) error {
	if len(s) == 0 {
		return errors.Wrapf(analysis.ErrNoData, "%s: not enough points", label)
	}
	l, err := plotter.NewLine(xys(s))
	if err != nil {
		return errors.Wrap(err, label)
	}
	l.Color = c
	l.Width = vg.Points(width)
	p.Add(l)
	p.Legend.Add(label, l)
	return nil
}

type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

func addErrorBars(p *plot.Plot, buckets []analysis.Bucket, label string) error {
	if len(buckets) == 0 {
		return errors.Wrapf(analysis.ErrNoData, "%s: no bucket reached the minimum count", label)
	}
	pts := errorPoints{
		XYs:     make(plotter.XYs, len(buckets)),
		YErrors: make(plotter.YErrors, len(buckets)),
	}
	for i, b := range buckets {
		pts.XYs[i] = plotter.XY{X: b.X, Y: b.Mean}
		pts.YErrors[i].Low = b.Std
		pts.YErrors[i].High = b.Std
	}

	bars, err := plotter.NewYErrorBars(pts)
	if err != nil {
		return errors.Wrap(err, "error bars")
	}
	bars.Color = darkBlue
	bars.CapWidth = vg.Points(4)
	p.Add(bars)

	return addLine(p, analysis.BucketSeries(buckets), darkBlue, 1.5, label)
}

func xys(s analysis.Series) plotter.XYs {
	out := make(plotter.XYs, len(s))
	for i, pt := range s {
		out[i].X = pt.X
		out[i].Y = pt.Y
	}
	return out
}

func save(p *plot.Plot, w, h vg.Length, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return errors.Wrap(err, "create chart directory")
	}
	return errors.Wrapf(p.Save(w, h, out), "save %s", out)
}
