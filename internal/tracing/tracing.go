// Package tracing wires distributed tracing spans around dispatch-loop
// message handling and storage-adapter I/O. The teacher's go.mod requires
// the otel/jaeger/sdk stack and ships tracing_test.go asserting this exact
// InitTracer/StartSpan shape, but the implementation file itself was absent
// from the retrieved snapshot; this restores it.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InitTracer configures a jaeger-exporting TracerProvider for serviceName
// and installs it as the global provider. The provider is returned even if
// the exporter can't immediately reach endpoint — jaeger export errors only
// surface later, when spans are flushed — matching the collector's "fire
// and forget" batching model.
func InitTracer(serviceName, endpoint string) (*sdktrace.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartSpan starts a span named name under the global tracer, tagged
// "syncmesh/synchronizer". Callers must call span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("syncmesh/synchronizer")
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
