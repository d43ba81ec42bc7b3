package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Operation statuses.
const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusIncomplete = "incomplete"
)

// StatusOf maps an operation error to StatusSuccess or StatusError.
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// BusinessMetrics records cache refreshes, key resolutions and key group changes.
type BusinessMetrics interface {
	// RecordOperation counts an operation. domain is "keycache", "resolver"
	// or "groups".
	RecordOperation(ctx context.Context, domain, operation, status string)

	// RecordDuration observes how long an operation took, in seconds.
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)

	// RecordResolution counts a finished key resolution by the protocol of
	// the chosen solution and whether every slot was filled.
	RecordResolution(ctx context.Context, protocol string, complete bool)
}

type businessMetrics struct {
	operations  metric.Int64Counter
	durations   metric.Float64Histogram
	resolutions metric.Int64Counter
}

// NewBusinessMetrics creates instruments on a meter named after namespace,
// e.g. keycache_operations_total.
func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)
	b := &businessMetrics{}

	var err error
	if b.operations, err = meter.Int64Counter(
		namespace+"_operations_total",
		metric.WithDescription("Cache refreshes, key resolutions and key group changes"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	if b.durations, err = meter.Float64Histogram(
		namespace+"_operation_duration_seconds",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	if b.resolutions, err = meter.Int64Counter(
		namespace+"_resolutions_total",
		metric.WithDescription("Key resolutions by chosen protocol and completeness"),
		metric.WithUnit("{resolution}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create resolution counter: %w", err)
	}

	return b, nil
}

func operationAttrs(domain, operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

// RecordOperation increments the operation counter.
func (b *businessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	b.operations.Add(ctx, 1, operationAttrs(domain, operation, status))
}

// RecordDuration records an operation duration in seconds.
func (b *businessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	b.durations.Record(ctx, duration.Seconds(), operationAttrs(domain, operation, status))
}

// RecordResolution counts a finished key resolution.
func (b *businessMetrics) RecordResolution(ctx context.Context, protocol string, complete bool) {
	b.resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("protocol", protocol),
		attribute.Bool("complete", complete),
	))
}

// NoOpBusinessMetrics discards everything. It is used when metrics are disabled.
type NoOpBusinessMetrics struct{}

// NewNoOpBusinessMetrics returns a BusinessMetrics that records nothing.
func NewNoOpBusinessMetrics() BusinessMetrics {
	return NoOpBusinessMetrics{}
}

// RecordOperation does nothing.
func (NoOpBusinessMetrics) RecordOperation(context.Context, string, string, string) {}

// RecordDuration does nothing.
func (NoOpBusinessMetrics) RecordDuration(context.Context, string, string, time.Duration, string) {}

// RecordResolution does nothing.
func (NoOpBusinessMetrics) RecordResolution(context.Context, string, bool) {}
