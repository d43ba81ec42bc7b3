// Package usecase manages key groups and keeps the certificate cache in step
// with them.
package usecase

import (
	"context"

	"github.com/google/uuid"

	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
	keycacheDomain "github.com/allisson/keycache/internal/keycache/domain"
)

// KeyGroupRepository defines the interface for key group persistence.
type KeyGroupRepository interface {
	Create(ctx context.Context, group *groupsDomain.KeyGroup) error
	Update(ctx context.Context, group *groupsDomain.KeyGroup) error
	Delete(ctx context.Context, groupID uuid.UUID) error
	Get(ctx context.Context, groupID uuid.UUID) (*groupsDomain.KeyGroup, error)
	GetByName(ctx context.Context, name string) (*groupsDomain.KeyGroup, error)
	List(ctx context.Context, offset, limit int) ([]*groupsDomain.KeyGroup, error)
	ListAll(ctx context.Context) ([]*groupsDomain.KeyGroup, error)
}

// GroupPublisher makes the committed key groups visible to the resolver.
type GroupPublisher interface {
	SetGroups(groups []*groupsDomain.KeyGroup) *keycacheDomain.Snapshot
}

// KeyGroupUseCase defines the key group management operations.
type KeyGroupUseCase interface {
	// Create validates and stores a new group. Returns ErrGroupAlreadyExists
	// when the normalized name is taken.
	Create(ctx context.Context, input groupsDomain.KeyGroupInput) (*groupsDomain.KeyGroup, error)
	// Update replaces the name, description and fingerprints of a group.
	Update(ctx context.Context, groupID uuid.UUID, input groupsDomain.KeyGroupInput) (*groupsDomain.KeyGroup, error)
	Get(ctx context.Context, groupID uuid.UUID) (*groupsDomain.KeyGroup, error)
	List(ctx context.Context, offset, limit int) ([]*groupsDomain.KeyGroup, error)
	Delete(ctx context.Context, groupID uuid.UUID) error
}
