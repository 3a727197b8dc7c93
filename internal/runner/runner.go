package runner

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"quickbench/internal/stats"
)

// EmitFunc receives every outcome. A non-nil error stops the whole run.
type EmitFunc func(ctx context.Context, o Outcome) error

// Observer is notified about every finished request, e.g. to export live metrics.
type Observer interface {
	Observe(o Outcome)
	SetInflight(n int64)
}

type Option func(*Runner)

// WithTracer traces every request and propagates its context downstream.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithHTTPClient replaces the pooled client built from the config.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) { r.Client = c }
}

type Runner struct {
	Cfg    Config
	Stats  *stats.Stats
	Client *http.Client

	// Event Channel
	Updates StatsUpdateChan

	url        string
	body       []byte
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	observer   Observer

	inflight int64
	started  uint64
}

func NewRunner(cfg Config, updates StatsUpdateChan, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	body, err := cfg.Payload.Marshal()
	if err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	client := &http.Client{
		Timeout:   timeout,
		Transport: t,
	}

	if updates == nil {
		// Avoid nil panics if not provided
		updates = make(StatsUpdateChan, 10)
	}

	r := &Runner{
		Cfg:        cfg,
		Stats:      stats.NewStats(),
		Client:     client,
		Updates:    updates,
		url:        cfg.TargetURL(),
		body:       body,
		tracer:     noop.NewTracerProvider().Tracer(""),
		propagator: propagation.TraceContext{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// URL is the target of every request.
func (r *Runner) URL() string {
	return r.url
}

// Body returns the request body sent by every virtual user.
func (r *Runner) Body() []byte {
	return r.body
}

// StartTickLoop starts a goroutine that pushes stats updates
func (r *Runner) StartTickLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sendUpdate()
			}
		}
	}()
}

func (r *Runner) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Requests: atomic.LoadUint64(&r.Stats.Requests),
		Success:  atomic.LoadUint64(&r.Stats.Success),
		Fail:     atomic.LoadUint64(&r.Stats.Fail),
		Bytes:    atomic.LoadUint64(&r.Stats.Bytes),
		Inflight: atomic.LoadInt64(&r.inflight),
		P50Ms:    r.Stats.GetP50(),
		P90Ms:    r.Stats.GetP90(),
		P95Ms:    r.Stats.GetP95(),
		P99Ms:    r.Stats.GetP99(),
		MaxMs:    r.Stats.MaxMs(),
	}
}

func (r *Runner) sendUpdate() {
	// Non-blocking send
	select {
	case r.Updates <- r.Snapshot():
	default:
		// Drop update if channel full, UI acts as backpressure
	}
}

// Run starts Cfg.VUs virtual users and blocks until all of them stopped.
//
// No iteration starts at or after start+Duration; requests in flight at the
// deadline finish and are emitted. Cancelling ctx aborts in-flight requests.
// Request failures never stop the run; an emit error does, and is returned.
func (r *Runner) Run(ctx context.Context, emit EmitFunc) error {
	start := time.Now()
	deadline := start.Add(r.Cfg.Duration)

	tickCtx, stopTicks := context.WithCancel(ctx)
	r.StartTickLoop(tickCtx, 200*time.Millisecond)
	defer func() {
		stopTicks()
		r.sendUpdate()
	}()

	g, gctx := errgroup.WithContext(ctx)
	for vu := 1; vu <= r.Cfg.VUs; vu++ {
		vu := vu
		g.Go(func() error {
			return r.runVU(gctx, vu, deadline, emit)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Runner) runVU(ctx context.Context, vu int, deadline time.Time, emit EmitFunc) error {
	for iter := uint64(0); ; iter++ {
		if ctx.Err() != nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			return nil
		}

		o := r.Iterate(ctx)
		o.VU = vu
		o.Iteration = iter
		if err := emit(ctx, o); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if r.Cfg.ThinkTime > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.Cfg.ThinkTime):
			}
		}
	}
}

// Started returns the number of requests started so far.
func (r *Runner) Started() uint64 {
	return atomic.LoadUint64(&r.started)
}

func (r *Runner) GetInflight() int64 {
	return atomic.LoadInt64(&r.inflight)
}

// Iterate performs exactly one POST /api/pizza and reports what happened.
// It never returns an error: failures are part of the outcome.
func (r *Runner) Iterate(ctx context.Context) Outcome {
	atomic.AddUint64(&r.started, 1)
	r.setInflight(atomic.AddInt64(&r.inflight, 1))
	defer func() { r.setInflight(atomic.AddInt64(&r.inflight, -1)) }()

	ctx, span := r.tracer.Start(ctx, "POST "+PizzaPath,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", http.MethodPost),
			attribute.String("url.full", r.url),
			attribute.String("quickbench.config", r.Cfg.Label),
		))
	defer span.End()

	start := time.Now()
	o := Outcome{Start: start, BytesSent: int64(len(r.body))}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(r.body))
	if err != nil {
		o.Err = err
		return r.finish(o, span)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "token "+r.Cfg.Token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	r.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := r.Client.Do(req)
	if err != nil {
		o.Latency = time.Since(start)
		o.Err = err
		return r.finish(o, span)
	}
	n, copyErr := io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	o.Latency = time.Since(start)
	o.Status = resp.StatusCode
	o.Proto = resp.Proto
	o.BytesRecv = n
	if copyErr != nil {
		o.Err = copyErr
	}
	return r.finish(o, span)
}

func (r *Runner) finish(o Outcome, span trace.Span) Outcome {
	o.Passed = o.Err == nil && o.Status == http.StatusOK

	span.SetAttributes(attribute.Int("http.response.status_code", o.Status))
	if !o.Passed {
		span.SetStatus(codes.Error, failureReason(o))
		if o.Err != nil {
			span.RecordError(o.Err)
		}
	}

	r.Stats.AddRequest(o.Passed, o.BytesRecv, o.Latency, failureReason(o))
	if r.observer != nil {
		r.observer.Observe(o)
	}
	return o
}

func (r *Runner) setInflight(n int64) {
	if r.observer != nil {
		r.observer.SetInflight(n)
	}
}

// failureReason groups failures for the end-of-run summary.
func failureReason(o Outcome) string {
	if o.Passed {
		return ""
	}
	if o.Err != nil {
		return o.Err.Error()
	}
	return fmt.Sprintf("HTTP %d", o.Status)
}
