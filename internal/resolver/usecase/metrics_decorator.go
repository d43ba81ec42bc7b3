package usecase

import (
	"context"
	"time"

	"github.com/allisson/keycache/internal/metrics"
	"github.com/allisson/keycache/internal/resolver/domain"
)

// resolverUseCaseWithMetrics decorates ResolverUseCase with metrics instrumentation.
type resolverUseCaseWithMetrics struct {
	next    ResolverUseCase
	metrics metrics.BusinessMetrics
}

// NewResolverUseCaseWithMetrics wraps a ResolverUseCase with metrics recording.
func NewResolverUseCaseWithMetrics(useCase ResolverUseCase, m metrics.BusinessMetrics) ResolverUseCase {
	return &resolverUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Resolve records metrics for resolution requests. Incomplete results are
// recorded with the "incomplete" status.
func (r *resolverUseCaseWithMetrics) Resolve(ctx context.Context, req domain.Request) (*domain.Result, error) {
	start := time.Now()
	result, err := r.next.Resolve(ctx, req)

	status := metrics.StatusOf(err)
	if err == nil {
		if !result.Complete {
			status = metrics.StatusIncomplete
		}
		r.metrics.RecordResolution(ctx, result.Protocol.String(), result.Complete)
	}

	r.metrics.RecordOperation(ctx, "resolver", "resolve", status)
	r.metrics.RecordDuration(ctx, "resolver", "resolve", time.Since(start), status)

	return result, err
}

// NewKeyResolver delegates to the wrapped use case; resolutions run by the
// returned resolver are not measured.
func (r *resolverUseCaseWithMetrics) NewKeyResolver(encrypt, sign bool, approver Approver) *KeyResolver {
	return r.next.NewKeyResolver(encrypt, sign, approver)
}
