package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
	"github.com/allisson/keycache/internal/metrics"
)

// keyGroupUseCaseWithMetrics decorates KeyGroupUseCase with metrics instrumentation.
type keyGroupUseCaseWithMetrics struct {
	next    KeyGroupUseCase
	metrics metrics.BusinessMetrics
}

// NewKeyGroupUseCaseWithMetrics wraps a KeyGroupUseCase with metrics recording.
func NewKeyGroupUseCaseWithMetrics(useCase KeyGroupUseCase, m metrics.BusinessMetrics) KeyGroupUseCase {
	return &keyGroupUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (k *keyGroupUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.StatusOf(err)
	k.metrics.RecordOperation(ctx, "groups", operation, status)
	k.metrics.RecordDuration(ctx, "groups", operation, time.Since(start), status)
}

// Create records metrics for key group creation.
func (k *keyGroupUseCaseWithMetrics) Create(
	ctx context.Context,
	input groupsDomain.KeyGroupInput,
) (*groupsDomain.KeyGroup, error) {
	start := time.Now()
	group, err := k.next.Create(ctx, input)
	k.record(ctx, "group_create", start, err)
	return group, err
}

// Update records metrics for key group updates.
func (k *keyGroupUseCaseWithMetrics) Update(
	ctx context.Context,
	groupID uuid.UUID,
	input groupsDomain.KeyGroupInput,
) (*groupsDomain.KeyGroup, error) {
	start := time.Now()
	group, err := k.next.Update(ctx, groupID, input)
	k.record(ctx, "group_update", start, err)
	return group, err
}

// Get records metrics for key group retrieval.
func (k *keyGroupUseCaseWithMetrics) Get(ctx context.Context, groupID uuid.UUID) (*groupsDomain.KeyGroup, error) {
	start := time.Now()
	group, err := k.next.Get(ctx, groupID)
	k.record(ctx, "group_get", start, err)
	return group, err
}

// List records metrics for key group listing.
func (k *keyGroupUseCaseWithMetrics) List(ctx context.Context, offset, limit int) ([]*groupsDomain.KeyGroup, error) {
	start := time.Now()
	groups, err := k.next.List(ctx, offset, limit)
	k.record(ctx, "group_list", start, err)
	return groups, err
}

// Delete records metrics for key group deletion.
func (k *keyGroupUseCaseWithMetrics) Delete(ctx context.Context, groupID uuid.UUID) error {
	start := time.Now()
	err := k.next.Delete(ctx, groupID)
	k.record(ctx, "group_delete", start, err)
	return err
}
