package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics holds metric instruments for authentication attempts.
type AuthMetrics struct {
	Attempts metric.Int64Counter
	Failures metric.Int64Counter
	Duration metric.Float64Histogram
}

// NewAuthMetrics creates the authentication instruments on the global meter provider.
func NewAuthMetrics() (*AuthMetrics, error) {
	meter := otel.Meter("gateway/auth")

	attempts, err := meter.Int64Counter(
		"auth.attempt.count",
		metric.WithDescription("Total number of authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"auth.failure.count",
		metric.WithDescription("Total number of failed authentication attempts"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"auth.duration",
		metric.WithDescription("Authentication duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		Attempts: attempts,
		Failures: failures,
		Duration: duration,
	}, nil
}

// RecordAuth records one attempt. reason is empty on success. A nil receiver is a no-op.
func (a *AuthMetrics) RecordAuth(ctx context.Context, strategy, reason string, elapsed time.Duration) {
	if a == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(AttrStrategy, strategy),
		attribute.Bool("auth.success", reason == ""),
	}
	a.Attempts.Add(ctx, 1, metric.WithAttributes(attrs...))
	a.Duration.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(attrs...))

	if reason != "" {
		attrs = append(attrs, attribute.String(AttrFailureReason, reason))
		a.Failures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
