package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/keycache/internal/resolver/domain"
)

type resolverUseCase struct {
	store  SnapshotSource
	engine PolicyEngine
	logger *slog.Logger
	clock  func() time.Time
}

// NewResolverUseCase creates a ResolverUseCase.
func NewResolverUseCase(store SnapshotSource, engine PolicyEngine, logger *slog.Logger) ResolverUseCase {
	return &resolverUseCase{
		store:  store,
		engine: engine,
		logger: logger,
		clock:  time.Now,
	}
}

// Resolve normalizes and validates req, then resolves it against the current snapshot.
func (r *resolverUseCase) Resolve(ctx context.Context, req domain.Request) (*domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req = req.Normalize(r.clock())
	if err := req.Validate(); err != nil {
		return nil, err
	}

	snapshot := r.store.Snapshot()
	result := r.engine.Resolve(snapshot, req)

	r.logger.Debug("keys resolved",
		slog.String("protocol", result.Label()),
		slog.Bool("complete", result.Complete),
		slog.Int("unresolved", len(result.Unresolved)),
		slog.Uint64("generation", snapshot.Generation()),
	)
	return result, nil
}

// NewKeyResolver creates a KeyResolver reading from the same store.
func (r *resolverUseCase) NewKeyResolver(encrypt, sign bool, approver Approver) *KeyResolver {
	resolver := NewKeyResolver(r.store, r.engine, encrypt, sign)
	resolver.approver = approver
	resolver.logger = r.logger
	resolver.clock = r.clock
	return resolver
}
