package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"quickbench/internal/metrics"
	"quickbench/internal/runid"
	"quickbench/internal/runner"
	"quickbench/internal/sink"
	"quickbench/internal/storage"
	"quickbench/internal/tracing"
	"quickbench/internal/tui"
)

// Options describe one benchmark run.
type Options struct {
	Config   runner.Config
	Hardware string
	OutDir   string
	// Date names the result file; zero means today.
	Date time.Time

	OTLPEndpoint string
	MetricsAddr  string
	// History, when set, records the run.
	History *storage.Store
	// TUI shows the live view instead of the progress line.
	TUI bool

	Out io.Writer
	Log *zap.SugaredLogger
}

// Result is what a run left behind.
type Result struct {
	File   string
	Record storage.RunRecord
	Errors map[string]uint64
}

// Run executes one benchmark and blocks until the result file is closed.
//
// Request failures never make Run fail. It returns an error for invalid
// options (before any request is sent), when the result file cannot be
// written (wrapping sink.ErrSinkFailed) and when ctx is cancelled.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.Date.IsZero() {
		opts.Date = time.Now()
	}
	if opts.OutDir == "" {
		opts.OutDir = "."
	}
	cfg := opts.Config
	log := opts.Log.With("config", cfg.Label)

	name, err := runid.Name(opts.Date, cfg.Label, runid.Params{VUs: cfg.VUs, Duration: cfg.Duration, Hardware: opts.Hardware})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	path := filepath.Join(opts.OutDir, name)
	warnOverwrite(path, opts.History, log)

	tp, err := tracing.Setup(ctx, opts.OTLPEndpoint, cfg.Label)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("flushing spans failed", "error", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runnerOpts := []runner.Option{runner.WithTracer(tp.Tracer())}
	if opts.MetricsAddr != "" {
		exporter := metrics.New(cfg.Label)
		runnerOpts = append(runnerOpts, runner.WithObserver(exporter))
		go func() {
			if err := exporter.Serve(runCtx, opts.MetricsAddr, log); err != nil {
				log.Warnw("metrics endpoint stopped", "error", err)
			}
		}()
	}

	updates := make(runner.StatsUpdateChan, 100)
	r, err := runner.NewRunner(cfg, updates, runnerOpts...)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}
	snk, err := sink.Create(path)
	if err != nil {
		return nil, err
	}

	// A broken result file invalidates the whole run.
	go func() {
		select {
		case <-snk.Failed():
			log.Errorw("result file write failed, aborting run", "file", path, "error", snk.Err())
			cancel()
		case <-runCtx.Done():
		}
	}()

	rec := storage.RunRecord{
		File:      path,
		Label:     cfg.Label,
		StartedAt: time.Now(),
		VUs:       cfg.VUs,
		Duration:  cfg.Duration,
		Hardware:  hardware(opts.Hardware),
		BaseURL:   cfg.BaseURL,
	}

	var view *tui.Program
	var stopProgress func()
	if opts.TUI {
		view = tui.Start(tui.NewModel(cfg, path, updates, cancel))
	} else {
		printHeader(opts.Out, cfg, path, tp.Exporting())
		stopProgress = monitor(opts.Out, r, updates, cfg.Duration)
	}

	log.Infow("run started", "file", path, "vus", cfg.VUs, "duration", cfg.Duration, "target", r.URL())
	url := r.URL()
	runErr := r.Run(runCtx, func(ctx context.Context, o runner.Outcome) error {
		return snk.Write(ctx, o.Samples(url)...)
	})
	closeErr := snk.Close()
	elapsed := time.Since(rec.StartedAt)

	if stopProgress != nil {
		stopProgress()
	}

	rec.FinishedAt = time.Now()
	rec.Summary = summarize(r, snk)
	rec.Status = storage.StatusCompleted

	var result error
	switch {
	case closeErr != nil:
		rec.Status = storage.StatusFailed
		result = errors.Wrapf(closeErr, "write %s", path)
	case runCtx.Err() != nil:
		// interrupted by a signal or from the live view
		rec.Status = storage.StatusCancelled
		result = errors.Wrap(runCtx.Err(), "run interrupted")
	case runErr != nil:
		rec.Status = storage.StatusFailed
		result = runErr
	}
	if result != nil {
		rec.Error = result.Error()
	}

	if opts.History != nil {
		if err := opts.History.Save(&rec); err != nil {
			log.Warnw("could not record run in history", "error", err)
		}
	}

	errCounts := r.Stats.GetErrorCounts()
	if view != nil {
		if err := view.Finish(rec, errCounts); err != nil {
			log.Warnw("live view failed", "error", err)
		}
	} else {
		printSummary(opts.Out, r, rec, elapsed)
	}

	log.Infow("run finished", "status", rec.Status, "requests", rec.Summary.TotalRequests,
		"failed", rec.Summary.Fail, "samples", rec.Summary.Samples)
	return &Result{File: path, Record: rec, Errors: errCounts}, result
}

func hardware(h string) string {
	if h == "" {
		return runid.DefaultHardware
	}
	return h
}

// warnOverwrite flags same-day reruns of a label, which reuse the file name.
func warnOverwrite(path string, history *storage.Store, log *zap.SugaredLogger) {
	if _, err := os.Stat(path); err == nil {
		log.Warnw("result file exists and will be overwritten", "file", path)
		return
	}
	if history == nil {
		return
	}
	if prev, err := history.FindByFile(path); err == nil {
		log.Warnw("a previous run used this file name", "file", filepath.Base(path),
			"previous", prev.StartedAt.Format(time.RFC3339), "status", prev.Status)
	}
}

func summarize(r *runner.Runner, snk *sink.Sink) storage.RunSummary {
	snap := r.Snapshot()
	return storage.RunSummary{
		TotalRequests: snap.Requests,
		Success:       snap.Success,
		Fail:          snap.Fail,
		Samples:       snk.Written(),
		AvgLatencyMs:  r.Stats.AvgMs(),
		P95LatencyMs:  snap.P95Ms,
		P99LatencyMs:  snap.P99Ms,
	}
}

// monitor prints a progress line until the returned stop func is called.
func monitor(out io.Writer, r *runner.Runner, updates runner.StatsUpdateChan, total time.Duration) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	startTime := time.Now()

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-updates:
				// Drain updates
			case <-ticker.C:
				elapsed := time.Since(startTime)
				snap := r.Snapshot()
				rps := 0.0
				if elapsed.Seconds() > 0 {
					rps = float64(snap.Requests) / elapsed.Seconds()
				}

				pct := 1.0
				if total > 0 {
					pct = elapsed.Seconds() / total.Seconds()
				}
				if pct > 1.0 {
					pct = 1.0
				}

				if elapsed >= total && snap.Inflight > 0 {
					fmt.Fprintf(out, "\r%s %3.0f%% | %s/%s | Draining: %d requests...                ",
						progressBar(1.0, 20), 100.0,
						elapsed.Round(time.Second), total,
						snap.Inflight)
					continue
				}
				fmt.Fprintf(out, "\r%s %3.0f%% | %s/%s | Inf: %3d | RPS: %.1f | OK: %d | Err: %d",
					progressBar(pct, 20), pct*100,
					elapsed.Round(time.Second), total,
					snap.Inflight,
					rps,
					snap.Success,
					snap.Fail,
				)
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

func printHeader(out io.Writer, cfg runner.Config, path string, exporting bool) {
	fmt.Fprintf(out, "\n🍕 STARTING QUICKBENCH RUN\n")
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Config     : %s\n", cfg.Label)
	fmt.Fprintf(out, "Target URL : %s\n", cfg.TargetURL())
	fmt.Fprintf(out, "VUs        : %d\n", cfg.VUs)
	fmt.Fprintf(out, "Duration   : %s\n", runid.FormatDuration(cfg.Duration))
	fmt.Fprintf(out, "Timeout    : %s\n", cfg.RequestTimeout)
	fmt.Fprintf(out, "Result file: %s\n", path)
	if exporting {
		fmt.Fprintf(out, "Tracing    : exporting client spans over OTLP\n")
	}
	fmt.Fprintf(out, "======================================================================\n\n")
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func printSummary(out io.Writer, r *runner.Runner, rec storage.RunRecord, totalTime time.Duration) {
	sum := rec.Summary
	rps := 0.0
	if totalTime > 0 {
		rps = float64(sum.TotalRequests) / totalTime.Seconds()
	}

	fmt.Fprintf(out, "\n\n📊 RUN RESULTS (%s)\n", rec.Status)
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Total Duration : %s\n", totalTime.Round(time.Millisecond))
	fmt.Fprintf(out, "Requests Sent  : %d\n", sum.TotalRequests)
	fmt.Fprintf(out, "Checks Passed  : %d\n", sum.Success)
	fmt.Fprintf(out, "Failures       : %d (%.2f%%)\n", sum.Fail, sum.FailureRate()*100)
	fmt.Fprintf(out, "Actual RPS     : %.2f\n", rps)
	fmt.Fprintf(out, "Samples Written: %d\n", sum.Samples)
	fmt.Fprintf(out, "\n⏱️  RESPONSE TIMES (ms)\n")
	fmt.Fprintf(out, "   Avg : %.2f\n", sum.AvgLatencyMs)
	fmt.Fprintf(out, "   P50 : %.2f\n", r.Stats.GetP50())
	fmt.Fprintf(out, "   P90 : %.2f\n", r.Stats.GetP90())
	fmt.Fprintf(out, "   P95 : %.2f\n", sum.P95LatencyMs)
	fmt.Fprintf(out, "   P99 : %.2f\n", sum.P99LatencyMs)
	fmt.Fprintf(out, "   Max : %.2f\n", r.Stats.MaxMs())

	errCounts := r.Stats.GetErrorCounts()
	if len(errCounts) > 0 {
		reasons := make([]string, 0, len(errCounts))
		for reason := range errCounts {
			reasons = append(reasons, reason)
		}
		sort.Slice(reasons, func(i, j int) bool { return errCounts[reasons[i]] > errCounts[reasons[j]] })

		fmt.Fprintf(out, "\n❌ FAILURE SUMMARY\n")
		for _, reason := range reasons {
			fmt.Fprintf(out, "   %d x %s\n", errCounts[reason], reason)
		}
	}
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Results: %s\n", rec.File)
}
