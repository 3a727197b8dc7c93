package charts

import (
	"fmt"
	"image/color"
	"math"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"quickbench/internal/analysis"
)

// StorageFile is the default output name of the storage comparison.
const StorageFile = "storage_comparison_bar_chart.png"

var (
	baselineRed = color.RGBA{0xe7, 0x4c, 0x3c, 0xff}
	darkGreen   = color.RGBA{0x27, 0xae, 0x60, 0xff}
	lightGreen  = color.RGBA{0x2e, 0xcc, 0x71, 0xff}
	amber       = color.RGBA{0xf3, 0x9c, 0x12, 0xff}
	darkOrange  = color.RGBA{0xe6, 0x7e, 0x22, 0xff}
	moreBlue    = color.RGBA{0x34, 0x98, 0xdb, 0xff}
	fewerPurple = color.RGBA{0x9b, 0x59, 0xb6, 0xff}
	sameGray    = color.RGBA{0x95, 0xa5, 0xa6, 0xff}
)

type StorageOptions struct {
	ShowSavings bool
	// CostPerGB, when positive, annotates each size bar with a monthly cost.
	CostPerGB float64
}

func sizeColor(r analysis.StorageRow) color.Color {
	switch {
	case r.Baseline():
		return baselineRed
	case r.Savings > 90:
		return darkGreen
	case r.Savings > 50:
		return lightGreen
	case r.Savings > 0:
		return amber
	default:
		return darkOrange
	}
}

func objectColor(r analysis.StorageRow) color.Color {
	switch {
	case r.Baseline():
		return baselineRed
	case r.ObjectChange > 0:
		return moreBlue
	case r.ObjectChange < 0:
		return fewerPurple
	default:
		return sameGray
	}
}

// StorageComparison draws storage size and object count side by side, one
// bar per configuration in the order given.
func StorageComparison(rows []analysis.StorageRow, opts StorageOptions, out string) error {
	if len(rows) == 0 {
		return errors.Wrap(analysis.ErrNoData, "storage rows")
	}

	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
	}

	sizePlot, err := barPlot(rows, names, "Storage Size Comparison", "Storage Size (MiB)",
		func(r analysis.StorageRow) float64 { return r.SizeMiB },
		sizeColor,
		func(r analysis.StorageRow) string {
			label := fmt.Sprintf("%.1f MiB", r.SizeMiB)
			if opts.ShowSavings && r.Savings > 0 {
				label += fmt.Sprintf(" (-%.0f%%)", r.Savings)
			}
			if opts.CostPerGB > 0 {
				label += fmt.Sprintf("\n$%.3f/mo", r.MonthlyCost(opts.CostPerGB))
			}
			return label
		})
	if err != nil {
		return err
	}
	objPlot, err := barPlot(rows, names, "Object Count Comparison", "Number of Objects",
		func(r analysis.StorageRow) float64 { return r.Objects },
		objectColor,
		func(r analysis.StorageRow) string {
			label := fmt.Sprintf("%d", int64(r.Objects))
			if opts.ShowSavings && r.ObjectChange != 0 {
				label += fmt.Sprintf(" (%+.0f%%)", r.ObjectChange)
			}
			return label
		})
	if err != nil {
		return err
	}

	img := vgimg.New(16*vg.Inch, 8*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1, Cols: 2,
		PadX: vg.Millimeter * 4, PadY: vg.Millimeter * 4,
		PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2,
		PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2,
	}
	canvases := plot.Align([][]*plot.Plot{{sizePlot, objPlot}}, tiles, dc)
	sizePlot.Draw(canvases[0][0])
	objPlot.Draw(canvases[0][1])

	f, err := os.Create(out)
	if err != nil {
		return errors.Wrap(err, "create storage chart")
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		f.Close()
		return errors.Wrap(err, "write storage chart")
	}
	return f.Close()
}

func barPlot(rows []analysis.StorageRow, names []string, title, ylabel string,
	value func(analysis.StorageRow) float64,
	colorOf func(analysis.StorageRow) color.Color,
	labelOf func(analysis.StorageRow) string) (*plot.Plot, error) {

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = ylabel
	p.Add(&plotter.Grid{Horizontal: plotter.DefaultGridLineStyle})

	maxV := 0.0
	labels := plotter.XYLabels{XYs: make(plotter.XYs, len(rows)), Labels: make([]string, len(rows))}
	for i, r := range rows {
		v := value(r)
		maxV = math.Max(maxV, v)

		bar, err := plotter.NewBarChart(plotter.Values{v}, vg.Points(40))
		if err != nil {
			return nil, errors.Wrapf(err, "%s bar", r.Name)
		}
		bar.XMin = float64(i)
		bar.Color = colorOf(r)
		bar.LineStyle.Width = vg.Points(1)
		p.Add(bar)

		labels.XYs[i] = plotter.XY{X: float64(i), Y: v}
		labels.Labels[i] = labelOf(r)
	}
	if maxV == 0 {
		maxV = 1
	}
	for i := range labels.XYs {
		labels.XYs[i].Y += maxV * 0.02
	}
	text, err := plotter.NewLabels(labels)
	if err != nil {
		return nil, errors.Wrap(err, "bar labels")
	}
	for i := range text.TextStyle {
		text.TextStyle[i].XAlign = draw.XCenter
	}
	p.Add(text)

	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.Y.Min = 0
	p.Y.Max = maxV * 1.15
	return p, nil
}
