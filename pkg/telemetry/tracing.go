// Package telemetry configures OpenTelemetry tracing for rendercrawl.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Settings controls trace export.
type Settings struct {
	// Enabled turns span recording on
	Enabled bool

	// ServiceName is reported as the service.name resource attribute
	ServiceName string

	// ServiceVersion is reported as the service.version resource attribute
	ServiceVersion string

	// PrettyPrint indents exported spans
	PrettyPrint bool

	// Writer receives exported spans; defaults to stdout
	Writer io.Writer
}

// TracerProvider wraps the OpenTelemetry tracer provider in use.
type TracerProvider struct {
	provider trace.TracerProvider
	shutdown func(context.Context) error
}

// NewTracerProvider builds a provider from s and installs it globally. When
// tracing is disabled the provider records nothing.
func NewTracerProvider(s Settings) (*TracerProvider, error) {
	if !s.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return &TracerProvider{
			provider: tp,
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	w := s.Writer
	if w == nil {
		w = os.Stdout
	}
	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if s.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	name := s.ServiceName
	if name == "" {
		name = "rendercrawl"
	}
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", name),
			attribute.String("service.version", s.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{
		provider: provider,
		shutdown: provider.Shutdown,
	}, nil
}

// Tracer returns a named tracer from this provider.
func (tp *TracerProvider) Tracer(name string) trace.Tracer {
	return tp.provider.Tracer(name)
}

// Shutdown flushes pending spans and stops the exporter.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.shutdown(ctx)
}
