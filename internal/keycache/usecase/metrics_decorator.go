package usecase

import (
	"context"
	"fmt"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/keycache/domain"
	"github.com/allisson/keycache/internal/metrics"
)

// refreshUseCaseWithMetrics decorates RefreshUseCase with metrics instrumentation.
type refreshUseCaseWithMetrics struct {
	next    RefreshUseCase
	metrics metrics.BusinessMetrics
}

// NewRefreshUseCaseWithMetrics wraps a RefreshUseCase with metrics recording.
func NewRefreshUseCaseWithMetrics(useCase RefreshUseCase, m metrics.BusinessMetrics) RefreshUseCase {
	return &refreshUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// StartRefresh records the pass outcome once its result is delivered.
// The recorded duration is the pass duration, not the time spent queued.
func (r *refreshUseCaseWithMetrics) StartRefresh(
	ctx context.Context,
	protocols ...certDomain.Protocol,
) <-chan domain.RefreshResult {
	upstream := r.next.StartRefresh(ctx, protocols...)
	out := make(chan domain.RefreshResult, 1)
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(out)
		result, ok := <-upstream
		if !ok {
			return
		}
		r.record(ctx, result)
		out <- result
	}()

	return out
}

func (r *refreshUseCaseWithMetrics) record(ctx context.Context, result domain.RefreshResult) {
	status := metrics.StatusOf(result.Err)
	r.metrics.RecordOperation(ctx, "keycache", "refresh", status)
	r.metrics.RecordDuration(ctx, "keycache", "refresh", result.Duration(), status)

	for _, pr := range result.Protocols {
		r.metrics.RecordOperation(ctx, "keycache", fmt.Sprintf("refresh_%s", pr.Protocol), metrics.StatusOf(pr.Err))
	}
}

// Refresh records metrics for synchronous refreshes.
func (r *refreshUseCaseWithMetrics) Refresh(
	ctx context.Context,
	protocols ...certDomain.Protocol,
) (domain.RefreshResult, error) {
	select {
	case result := <-r.StartRefresh(ctx, protocols...):
		return result, result.Err
	case <-ctx.Done():
		return domain.RefreshResult{}, ctx.Err()
	}
}

// Subscribe delegates to the wrapped use case.
func (r *refreshUseCaseWithMetrics) Subscribe(fn func(domain.RefreshResult)) func() {
	return r.next.Subscribe(fn)
}

// Close delegates to the wrapped use case.
func (r *refreshUseCaseWithMetrics) Close() error {
	return r.next.Close()
}
