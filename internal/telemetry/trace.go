// Package telemetry wraps OpenTelemetry tracing and metric instruments used by
// the authentication services. Instruments come from the global providers, so
// they are no-ops until the hosting process installs an SDK.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names.
const (
	TracerIAM      = "gateway/services/iam"
	TracerProvider = "gateway/provider"
)

// Attribute keys.
const (
	AttrStrategy      = "auth.strategy"
	AttrFailureReason = "auth.failure_reason"
	AttrPrincipalID   = "principal.id"
	AttrPrincipalLevel = "principal.level"
	AttrProvider      = "provider.name"
)

// StartSpan creates a new span for a service operation.
//
//	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.Authenticate",
//	    attribute.String(telemetry.AttrStrategy, "password"),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records err on the span and marks the span failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds a named event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
