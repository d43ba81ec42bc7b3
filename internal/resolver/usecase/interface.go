// Package usecase serves key resolution requests: the stateless Resolve entry
// point and the KeyResolver request lifecycle with its approval step.
package usecase

import (
	"context"

	keycacheDomain "github.com/allisson/keycache/internal/keycache/domain"
	"github.com/allisson/keycache/internal/resolver/domain"
)

// SnapshotSource provides the snapshot a request is resolved against.
type SnapshotSource interface {
	Snapshot() *keycacheDomain.Snapshot
}

// PolicyEngine computes automatic results.
type PolicyEngine interface {
	Resolve(snapshot *keycacheDomain.Snapshot, req domain.Request) *domain.Result
}

// Approver is the user interface collaborator asked to confirm, complete or
// cancel a proposal.
type Approver interface {
	Approve(ctx context.Context, proposal domain.Proposal) (domain.Decision, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, proposal domain.Proposal) (domain.Decision, error)

// Approve calls f.
func (f ApproverFunc) Approve(ctx context.Context, proposal domain.Proposal) (domain.Decision, error) {
	return f(ctx, proposal)
}

// ResolverUseCase defines the key resolution operations.
type ResolverUseCase interface {
	// Resolve normalizes and validates req and returns the automatic result.
	// Incomplete results are not errors; see Result.Complete.
	Resolve(ctx context.Context, req domain.Request) (*domain.Result, error)
	// NewKeyResolver creates a request lifecycle bound to the same store.
	NewKeyResolver(encrypt, sign bool, approver Approver) *KeyResolver
}
