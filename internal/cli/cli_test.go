package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"quickbench/internal/dummy"
	"quickbench/internal/runid"
	"quickbench/internal/runner"
	"quickbench/internal/sink"
	"quickbench/internal/storage"
)

var runDate = time.Date(2025, 10, 14, 9, 30, 0, 0, time.UTC)

func options(t *testing.T, baseURL string, d time.Duration) Options {
	return Options{
		Config: runner.Config{
			BaseURL:        baseURL,
			Token:          runner.DefaultToken,
			Label:          "dedup",
			VUs:            2,
			Duration:       d,
			RequestTimeout: time.Second,
			Payload:        runner.DefaultRestrictions(),
		},
		OutDir: t.TempDir(),
		Date:   runDate,
		Out:    &bytes.Buffer{},
	}
}

func readRows(t *testing.T, path string, metric string) []sink.Sample {
	t.Helper()
	all, err := sink.ReadFile(path)
	require.NoError(t, err)
	var out []sink.Sample
	for _, s := range all {
		if s.Metric == metric {
			out = append(out, s)
		}
	}
	return out
}

func TestRunRecordsSuccesses(t *testing.T) {
	srv := httptest.NewServer(dummy.NewHandler(dummy.ServerConfig{Token: runner.DefaultToken}))
	defer srv.Close()

	opts := options(t, srv.URL, 300*time.Millisecond)
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(opts.OutDir, "141025-quickpizza-dedup-2vus-300ms-t3.medium.gz"), res.File)
	assert.Equal(t, storage.StatusCompleted, res.Record.Status)
	assert.Greater(t, res.Record.Summary.TotalRequests, uint64(0))
	assert.Equal(t, res.Record.Summary.TotalRequests, res.Record.Summary.Success)
	assert.Equal(t, res.Record.Summary.TotalRequests*8, res.Record.Summary.Samples)

	checks := readRows(t, res.File, sink.MetricChecks)
	require.Len(t, checks, int(res.Record.Summary.TotalRequests))
	for _, c := range checks {
		assert.Equal(t, 1.0, c.Value)
		assert.Equal(t, runner.CheckName, c.Tags.Check)
		assert.Equal(t, http.StatusOK, c.Tags.Status)
	}
	for _, s := range readRows(t, res.File, sink.MetricHTTPReqs) {
		assert.Equal(t, "POST", s.Tags.Method)
		assert.Equal(t, srv.URL+"/api/pizza", s.Tags.URL)
	}

	out := opts.Out.(*bytes.Buffer).String()
	assert.Contains(t, out, "STARTING QUICKBENCH RUN")
	assert.Contains(t, out, "RUN RESULTS (completed)")
}

func TestRunUnreachableTargetSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	opts := options(t, url, time.Second)
	opts.Config.VUs = 1
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, storage.StatusCompleted, res.Record.Status)
	assert.Equal(t, uint64(0), res.Record.Summary.Success)
	failed := readRows(t, res.File, sink.MetricHTTPReqFailed)
	require.NotEmpty(t, failed)
	for _, s := range failed {
		assert.Equal(t, 1.0, s.Value)
	}
	assert.NotEmpty(t, res.Errors)
}

func TestRunServerErrorsOnlyFailures(t *testing.T) {
	srv := httptest.NewServer(dummy.NewHandler(dummy.ServerConfig{Status: http.StatusInternalServerError}))
	defer srv.Close()

	opts := options(t, srv.URL, 400*time.Millisecond)
	start := time.Now()
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)

	checks := readRows(t, res.File, sink.MetricChecks)
	require.NotEmpty(t, checks)
	for _, c := range checks {
		assert.Equal(t, 0.0, c.Value)
		assert.Equal(t, http.StatusInternalServerError, c.Tags.Status)
	}
	assert.Equal(t, uint64(len(checks)), res.Errors["HTTP 500"])
}

func TestRunZeroDurationWritesHeaderOnly(t *testing.T) {
	h := dummy.NewHandler(dummy.ServerConfig{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	res, err := Run(context.Background(), options(t, srv.URL, 0))
	require.NoError(t, err)
	samples, err := sink.ReadFile(res.File)
	require.NoError(t, err)
	assert.Empty(t, samples)
	assert.Equal(t, uint64(0), h.Requests())
}

func TestRunConfigErrorsSendNothing(t *testing.T) {
	h := dummy.NewHandler(dummy.ServerConfig{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	tests := []struct {
		name   string
		mutate func(*Options)
		want   error
	}{
		{"missing label", func(o *Options) { o.Config.Label = "" }, runid.ErrEmptyLabel},
		{"label with slash", func(o *Options) { o.Config.Label = "a/b" }, runid.ErrInvalidLabel},
		{"malformed url", func(o *Options) { o.Config.BaseURL = "ftp://nowhere" }, runner.ErrInvalidBaseURL},
		{"bad payload", func(o *Options) { o.Config.Payload.MinNumberOfToppings = 99 }, runner.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options(t, srv.URL, time.Second)
			tt.mutate(&opts)
			_, err := Run(context.Background(), opts)
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.Cause(err))

			entries, _ := os.ReadDir(opts.OutDir)
			assert.Empty(t, entries, "no result file is created")
		})
	}
	assert.Equal(t, uint64(0), h.Requests())
}

func TestRunSinkFailureAborts(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("needs /dev/full")
	}
	srv := httptest.NewServer(dummy.NewHandler(dummy.ServerConfig{}))
	defer srv.Close()

	store, err := storage.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	opts := options(t, srv.URL, time.Minute)
	opts.History = store
	name, err := runid.Name(runDate, "dedup", runid.Params{VUs: 2, Duration: time.Minute})
	require.NoError(t, err)
	require.NoError(t, os.Symlink("/dev/full", filepath.Join(opts.OutDir, name)))

	start := time.Now()
	res, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, sink.ErrSinkFailed, errors.Cause(err))
	assert.Less(t, time.Since(start), 30*time.Second, "the run stops well before its deadline")
	assert.Equal(t, storage.StatusFailed, res.Record.Status)

	saved, err := store.FindByFile(name)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, saved.Status)
	assert.NotEmpty(t, saved.Error)
}

func TestRunCancelled(t *testing.T) {
	srv := httptest.NewServer(dummy.NewHandler(dummy.ServerConfig{Latency: 5 * time.Millisecond}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	res, err := Run(ctx, options(t, srv.URL, time.Minute))
	require.Error(t, err)
	assert.Equal(t, context.DeadlineExceeded, errors.Cause(err))
	assert.Equal(t, storage.StatusCancelled, res.Record.Status)

	// everything recorded before the interruption is readable
	samples, err := sink.ReadFile(res.File)
	require.NoError(t, err)
	assert.NotEmpty(t, samples)
}

func TestRunRecordsHistoryAndWarnsOnRerun(t *testing.T) {
	srv := httptest.NewServer(dummy.NewHandler(dummy.ServerConfig{}))
	defer srv.Close()

	store, err := storage.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	opts := options(t, srv.URL, 100*time.Millisecond)
	opts.History = store
	opts.Log = zap.New(core).Sugar()

	first, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Zero(t, logs.Len())

	second, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first.File, second.File)
	assert.Equal(t, 1, logs.FilterMessage("result file exists and will be overwritten").Len())

	items, err := store.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "dedup", items[0].Label)
	assert.Equal(t, storage.StatusCompleted, items[0].Status)
	assert.Equal(t, 2, items[0].VUs)
	assert.Equal(t, runid.DefaultHardware, items[0].Hardware)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[----]", progressBar(0, 4))
	assert.Equal(t, "[██--]", progressBar(0.5, 4))
	assert.Equal(t, "[████]", progressBar(2, 4))
}
