// Package tracing configures the OpenTelemetry tracer used for outgoing
// requests. Without an endpoint spans are still created so a traceparent
// header reaches the collector under test, but nothing is exported.
package tracing

import (
	"context"
	"time"

	"github.com/goware/urlx"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName        = "quickbench"
	InstrumentationLib = "quickbench/internal/runner"
)

// Provider wraps the SDK tracer provider and its shutdown.
type Provider struct {
	tp       *sdktrace.TracerProvider
	exporter *otlptrace.Exporter
}

// Setup builds a tracer provider tagged with the run label. endpoint is an
// OTLP/HTTP base URL such as http://localhost:4318; empty disables export.
func Setup(ctx context.Context, endpoint, label string) (*Provider, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("quickbench.config", label),
	)
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	p := &Provider{}
	if endpoint != "" {
		client, err := httpClient(endpoint)
		if err != nil {
			return nil, err
		}
		exporter, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, errors.Wrap(err, "configure otlp exporter")
		}
		p.exporter = exporter
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(time.Second)))
	}
	p.tp = sdktrace.NewTracerProvider(opts...)
	return p, nil
}

func httpClient(endpoint string) (otlptrace.Client, error) {
	u, err := urlx.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "otlp endpoint %q", endpoint)
	}
	options := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(u.Host),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if u.Scheme != "https" {
		options = append(options, otlptracehttp.WithInsecure())
	}
	if u.Path != "" && u.Path != "/" {
		options = append(options, otlptracehttp.WithURLPath(u.Path))
	}
	return otlptracehttp.NewClient(options...), nil
}

func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer(InstrumentationLib)
}

// Exporting reports whether spans leave the process.
func (p *Provider) Exporting() bool {
	return p.exporter != nil
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Wrap(p.tp.Shutdown(ctx), "shutdown tracer provider")
}
