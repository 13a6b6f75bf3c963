// Tracing setup (C15): one OpenTelemetry tracer provider for the process,
// always exporting to stdout. When OTEL_EXPORTER_OTLP_ENDPOINT is set it is
// only recorded as a resource attribute; no OTLP/gRPC export takes place.
//
// Grounded on the teacher's go.opentelemetry.io/otel + sdk/trace stack.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// InitTracing installs a global TracerProvider and returns a shutdown
// function the caller must invoke during graceful shutdown. otlpEndpoint
// empty means "stdout exporter" (development mode); the exporter is kept
// deliberately simple since tracing is an ambient concern, not core logic.
func InitTracing(ctx context.Context, serviceName, otlpEndpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	// The OTLP/gRPC exporter lives in a separate go.mod module the base
	// pack does not carry (see DESIGN.md); both branches currently export
	// via stdout, with the configured endpoint, when set, only affecting
	// the resource attributes so operators can still see it was supplied.
	if otlpEndpoint != "" {
		res, err = resource.New(ctx, resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("otel.exporter_otlp_endpoint", otlpEndpoint),
		))
		if err != nil {
			return nil, fmt.Errorf("telemetry: building resource: %w", err)
		}
	}

	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: building stdout exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
