// Package telemetry installs the OpenTelemetry tracer provider engine
// spans are exported through.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"google.golang.org/grpc"
)

// ServiceName is the default service name of exported spans.
const ServiceName = "qgraph"

// Shutdown flushes and stops the installed provider.
type Shutdown func(context.Context) error

// Setup exports spans over OTLP/gRPC to endpoint and installs the
// provider globally. If endpoint is empty, nothing is configured and the
// returned Shutdown is a no-op.
func Setup(ctx context.Context, endpoint, service string) (Shutdown, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	if service == "" {
		service = ServiceName
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := NewProvider(service, sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// NewProvider returns a tracer provider tagged with service. Tests pass a
// span processor such as tracetest.NewSpanRecorder().
func NewProvider(service string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append(opts, sdktrace.WithResource(resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	)))
	return sdktrace.NewTracerProvider(opts...)
}
