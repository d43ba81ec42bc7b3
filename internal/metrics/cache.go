package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheStats is a point-in-time view of the certificate cache.
type CacheStats struct {
	Generation   uint64
	Certificates map[string]int64 // Keyed by protocol name
	Groups       int64
}

// CacheStatsFunc reads the current cache statistics. It is called on every scrape.
type CacheStatsFunc func() CacheStats

// RegisterCacheGauges registers observable gauges reporting the certificate
// cache size and generation. Unregister the returned registration on shutdown.
func RegisterCacheGauges(
	meterProvider metric.MeterProvider,
	namespace string,
	stats CacheStatsFunc,
) (metric.Registration, error) {
	meter := meterProvider.Meter(namespace)

	certificates, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_cache_certificates", namespace),
		metric.WithDescription("Certificates in the current cache snapshot"),
		metric.WithUnit("{certificate}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificates gauge: %w", err)
	}

	generation, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_cache_generation", namespace),
		metric.WithDescription("Generation of the current cache snapshot"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation gauge: %w", err)
	}

	groups, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_cache_groups", namespace),
		metric.WithDescription("Key groups in the current cache snapshot"),
		metric.WithUnit("{group}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create groups gauge: %w", err)
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		for protocol, count := range s.Certificates {
			o.ObserveInt64(certificates, count, metric.WithAttributes(attribute.String("protocol", protocol)))
		}
		o.ObserveInt64(generation, int64(s.Generation))
		o.ObserveInt64(groups, s.Groups)
		return nil
	}, certificates, generation, groups)
	if err != nil {
		return nil, fmt.Errorf("failed to register cache callback: %w", err)
	}
	return registration, nil
}
