// Package metrics exposes live run counters in the Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quickbench/internal/runner"
)

const namespace = "quickbench"

// Exporter implements runner.Observer.
type Exporter struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	failures prometheus.Counter
	latency  prometheus.Histogram
	sent     prometheus.Counter
	received prometheus.Counter
	inflight prometheus.Gauge
}

// New registers the run collectors in a private registry. label becomes a
// constant "config" label on every series.
func New(label string) *Exporter {
	constLabels := prometheus.Labels{"config": label}
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "requests_total",
			Help:        "POST /api/pizza requests completed, by status code.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "requests_failed_total",
			Help:        "Requests that failed the status check.",
			ConstLabels: constLabels,
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "request_duration_seconds",
			Help:        "Request latency.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "data_sent_bytes_total",
			Help:        "Request body bytes sent.",
			ConstLabels: constLabels,
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "data_received_bytes_total",
			Help:        "Response body bytes received.",
			ConstLabels: constLabels,
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "requests_in_flight",
			Help:        "Requests currently waiting for a response.",
			ConstLabels: constLabels,
		}),
	}
	e.registry.MustRegister(e.requests, e.failures, e.latency, e.sent, e.received, e.inflight)
	return e
}

func (e *Exporter) Observe(o runner.Outcome) {
	status := "error"
	if o.Status != 0 {
		status = strconv.Itoa(o.Status)
	}
	e.requests.WithLabelValues(status).Inc()
	if o.Failed() {
		e.failures.Inc()
	}
	e.latency.Observe(o.Latency.Seconds())
	e.sent.Add(float64(o.BytesSent))
	e.received.Add(float64(o.BytesRecv))
}

func (e *Exporter) SetInflight(n int64) {
	e.inflight.Set(float64(n))
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (e *Exporter) Serve(ctx context.Context, addr string, log *zap.SugaredLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	log.Infow("serving metrics", "addr", addr, "path", "/metrics")

	select {
	case err := <-errCh:
		return errors.Wrap(err, "metrics server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
