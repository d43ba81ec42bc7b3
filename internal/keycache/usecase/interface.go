// Package usecase keeps the certificate store in sync with the key-listing
// engine: it runs coalesced refresh passes, loads key groups and watches the
// keyring for changes.
package usecase

import (
	"context"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
	"github.com/allisson/keycache/internal/keycache/domain"
)

// ListOptions narrows a key listing.
type ListOptions struct {
	Patterns   []string // Empty lists every key
	SecretOnly bool
}

// KeyLister lists the certificates of one protocol from a key-listing engine.
// Implementations return errors wrapping domain.ErrEngine.
type KeyLister interface {
	ListKeys(ctx context.Context, protocol certDomain.Protocol, opts ListOptions) ([]*certDomain.Certificate, error)
}

// GroupSource loads every key group.
type GroupSource interface {
	ListAll(ctx context.Context) ([]*groupsDomain.KeyGroup, error)
}

// SnapshotSource hands out the current certificate snapshot.
type SnapshotSource interface {
	Snapshot() *domain.Snapshot
}

// Store is the part of the certificate store the controller writes to.
type Store interface {
	SnapshotSource
	GroupsRevision() uint64
	ReplaceAll(certs []*certDomain.Certificate, groups []*groupsDomain.KeyGroup, groupsRev uint64) *domain.Snapshot
}

// Refresher starts refresh passes.
type Refresher interface {
	// StartRefresh requests a refresh of the given protocols (all when empty)
	// and returns a future delivering exactly one result.
	StartRefresh(ctx context.Context, protocols ...certDomain.Protocol) <-chan domain.RefreshResult
}

// RefreshUseCase defines the cache refresh operations.
type RefreshUseCase interface {
	Refresher
	// Refresh runs StartRefresh and waits for the result. The returned error
	// is the result's Err, or ctx.Err() when ctx ends first.
	Refresh(ctx context.Context, protocols ...certDomain.Protocol) (domain.RefreshResult, error)
	// Subscribe registers fn to be called after every published refresh and
	// returns a function removing it.
	Subscribe(fn func(domain.RefreshResult)) (unsubscribe func())
	// Close waits for the running pass and rejects further requests.
	Close() error
}
