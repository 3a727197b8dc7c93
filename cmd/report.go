package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"quickbench/internal/analysis"
	"quickbench/internal/charts"
	"quickbench/internal/tui/history"
)

// Chart kinds accepted by plot.
const (
	KindTimes  = "times"
	KindRPSCDF = "rps-cdf"
)

var ErrUnknownKind = errors.New("unknown chart kind")

// --- Analyze ---

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Print latency and RPS statistics of result files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				d, err := analysis.Load(path)
				if err != nil {
					return err
				}
				rep, err := d.Report()
				if err != nil {
					return errors.Wrap(err, path)
				}
				printReport(cmd.OutOrStdout(), path, rep)
			}
			return nil
		},
	}
}

func printReport(out io.Writer, path string, r analysis.Report) {
	fmt.Fprintf(out, "\n📈 %s\n", filepath.Base(path))
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Config       : %s\n", r.Config)
	fmt.Fprintf(out, "Requests     : %d over %s\n", r.Requests, r.Span.Round(time.Millisecond))
	fmt.Fprintf(out, "Failure Rate : %.2f%%\n", r.FailureRate*100)
	fmt.Fprintf(out, "Checks Passed: %.2f%%\n", r.CheckRate*100)
	fmt.Fprintf(out, "\n⏱️  REQUEST DURATION (ms)\n")
	printSummaryStats(out, r.Duration)
	fmt.Fprintf(out, "\n🚀 REQUESTS PER SECOND\n")
	printSummaryStats(out, r.RPS)
	fmt.Fprintf(out, "======================================================================\n")
}

func printSummaryStats(out io.Writer, s analysis.Summary) {
	fmt.Fprintf(out, "   Avg : %.2f\n", s.Mean)
	fmt.Fprintf(out, "   Min : %.2f\n", s.Min)
	fmt.Fprintf(out, "   P50 : %.2f\n", s.P50)
	fmt.Fprintf(out, "   P95 : %.2f\n", s.P95)
	fmt.Fprintf(out, "   P99 : %.2f\n", s.P99)
	fmt.Fprintf(out, "   Max : %.2f\n", s.Max)
}

// --- Plot ---

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot <file>...",
		Short: "Render request time or RPS CDF charts",
		Long: `Renders one PNG per result file.

--kind times    http_req_duration over the run with P95, P99 and average lines.
                --smooth none|rolling|resample|both|savgol
--kind rps-cdf  CDF of requests per second with P50, P95 and P99 markers.
                --smooth none|binned`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			kind, _ := f.GetString("kind")
			smooth, _ := f.GetString("smooth")
			outDir, _ := f.GetString("out-dir")
			window, _ := f.GetInt("window")
			freq, _ := f.GetDuration("freq")
			minCount, _ := f.GetInt("min-count")
			bins, _ := f.GetInt("bins")

			for _, path := range args {
				out, sum, err := plotFile(path, kind, smooth, outDir, charts.TimesOptions{
					Smooth:   smooth,
					Window:   window,
					Freq:     freq,
					MinCount: minCount,
				}, bins)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (n=%d, P50 %.2f, P95 %.2f, P99 %.2f)\n",
					filepath.Base(path), out, sum.Count, sum.P50, sum.P95, sum.P99)
			}
			return nil
		},
	}
	cmd.Flags().String("kind", KindTimes, "chart kind (times, rps-cdf)")
	cmd.Flags().String("smooth", charts.SmoothNone, "smoothing method")
	cmd.Flags().String("out-dir", ".", "directory for the PNG files")
	cmd.Flags().Int("window", analysis.DefaultWindow, "rolling window in samples")
	cmd.Flags().Duration("freq", time.Second, "resample bucket width")
	cmd.Flags().Int("min-count", analysis.DefaultMinCount, "minimum samples per resample bucket")
	cmd.Flags().Int("bins", 0, "histogram bins for the binned CDF, 0 picks from the data")
	return cmd
}

func plotFile(path, kind, smooth, outDir string, opts charts.TimesOptions, bins int) (string, analysis.Summary, error) {
	d, err := analysis.Load(path)
	if err != nil {
		return "", analysis.Summary{}, err
	}

	var out string
	var sum analysis.Summary
	switch kind {
	case KindTimes:
		out = charts.RequestTimesFile(outDir, d.Config(), smooth)
		sum, err = charts.RequestTimes(d, opts, out)
	case KindRPSCDF:
		out = charts.RPSCDFFile(outDir, path, smooth)
		sum, err = charts.RPSCDF(d, smooth, bins, out)
	default:
		return "", analysis.Summary{}, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
	if err != nil {
		return "", analysis.Summary{}, errors.Wrap(err, path)
	}
	return out, sum, nil
}

// --- Storage ---

func newStorageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage <csv>",
		Short: "Compare bucket size and object count per collector configuration",
		Long: `Reads a CSV with the columns configuration,total size,total objects
(sizes like "12.5 MiB") and renders a bar chart of both against the
default collector.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			out, _ := f.GetString("out")
			noSavings, _ := f.GetBool("no-savings")
			cost, _ := f.GetFloat64("cost-per-gb")

			rows, err := analysis.ReadStorageFile(args[0])
			if err != nil {
				return err
			}
			if err := charts.StorageComparison(rows, charts.StorageOptions{
				ShowSavings: !noSavings,
				CostPerGB:   cost,
			}, out); err != nil {
				return err
			}
			printStorage(cmd.OutOrStdout(), rows, cost)
			fmt.Fprintf(cmd.OutOrStdout(), "Chart: %s\n", out)
			return nil
		},
	}
	cmd.Flags().String("out", charts.StorageFile, "output PNG")
	cmd.Flags().Bool("no-savings", false, "omit savings annotations")
	cmd.Flags().Float64("cost-per-gb", analysis.DefaultCostPerGB, "monthly $/GiB for cost estimates, 0 disables")
	return cmd
}

func printStorage(out io.Writer, rows []analysis.StorageRow, cost float64) {
	fmt.Fprintf(out, "%-24s %12s %10s %9s %9s", "Configuration", "Size (MiB)", "Objects", "Savings", "Obj chg")
	if cost > 0 {
		fmt.Fprintf(out, " %10s", "$/month")
	}
	fmt.Fprintln(out)
	for _, r := range rows {
		fmt.Fprintf(out, "%-24s %12.2f %10.0f %8.1f%% %8.1f%%", r.Name, r.SizeMiB, r.Objects, r.Savings, r.ObjectChange)
		if cost > 0 {
			fmt.Fprintf(out, " %10.4f", r.MonthlyCost(cost))
		}
		fmt.Fprintln(out)
	}
}

// --- History ---

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("history")
			interactive, _ := cmd.Flags().GetBool("tui")

			store, err := openHistory(path)
			if err != nil {
				return err
			}
			defer store.Close()

			if interactive {
				_, err := tea.NewProgram(history.NewModel(store), tea.WithAltScreen()).Run()
				return err
			}

			items, err := store.List()
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
				return nil
			}

			var header []string
			for _, c := range history.Columns {
				header = append(header, pad(c.Title, c.Width))
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(header, " "))
			for _, row := range history.Rows(items) {
				cells := make([]string, len(row))
				for i, cell := range row {
					cells[i] = pad(cell, history.Columns[i].Width)
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(strings.Join(cells, " "), " "))
			}
			return nil
		},
	}
	cmd.Flags().String("history", "", "run history database (default is $HOME/.quickbench/history.db)")
	cmd.Flags().Bool("tui", false, "browse the history in a table")
	return cmd
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
