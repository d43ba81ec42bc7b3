package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/keycache/internal/database"
	apperrors "github.com/allisson/keycache/internal/errors"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
)

// keyGroupUseCase implements KeyGroupUseCase.
type keyGroupUseCase struct {
	txManager database.TxManager
	groupRepo KeyGroupRepository
	publisher GroupPublisher

	// mu orders commit and publish of concurrent changes.
	mu sync.Mutex
}

// Create validates, normalizes and persists a new key group, then publishes
// the groups to the certificate cache so the group becomes resolvable.
func (k *keyGroupUseCase) Create(
	ctx context.Context,
	input groupsDomain.KeyGroupInput,
) (*groupsDomain.KeyGroup, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	name, fingerprints, err := input.Normalized()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}

	now := time.Now().UTC()
	group := &groupsDomain.KeyGroup{
		ID:           uuid.Must(uuid.NewV7()),
		Name:         name,
		Description:  input.Description,
		Fingerprints: fingerprints,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = k.change(ctx, func(ctx context.Context) error {
		if err := k.ensureNameAvailable(ctx, name, uuid.Nil); err != nil {
			return err
		}
		return k.groupRepo.Create(ctx, group)
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// Update replaces the mutable fields of an existing group.
func (k *keyGroupUseCase) Update(
	ctx context.Context,
	groupID uuid.UUID,
	input groupsDomain.KeyGroupInput,
) (*groupsDomain.KeyGroup, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	name, fingerprints, err := input.Normalized()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}

	var group *groupsDomain.KeyGroup
	err = k.change(ctx, func(ctx context.Context) error {
		existing, err := k.groupRepo.Get(ctx, groupID)
		if err != nil {
			return err
		}
		if existing.Name != name {
			if err := k.ensureNameAvailable(ctx, name, groupID); err != nil {
				return err
			}
		}

		existing.Name = name
		existing.Description = input.Description
		existing.Fingerprints = fingerprints
		existing.UpdatedAt = time.Now().UTC()

		if err := k.groupRepo.Update(ctx, existing); err != nil {
			return err
		}
		group = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// ensureNameAvailable fails with ErrGroupAlreadyExists when another group
// already uses name.
func (k *keyGroupUseCase) ensureNameAvailable(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := k.groupRepo.GetByName(ctx, name)
	if err != nil {
		if apperrors.Is(err, groupsDomain.ErrGroupNotFound) {
			return nil
		}
		return err
	}
	if existing.ID != self {
		return groupsDomain.ErrGroupAlreadyExists
	}
	return nil
}

// Get retrieves a key group by ID.
// Returns ErrGroupNotFound if the group doesn't exist.
func (k *keyGroupUseCase) Get(ctx context.Context, groupID uuid.UUID) (*groupsDomain.KeyGroup, error) {
	return k.groupRepo.Get(ctx, groupID)
}

// List retrieves key groups ordered by name with pagination support.
func (k *keyGroupUseCase) List(ctx context.Context, offset, limit int) ([]*groupsDomain.KeyGroup, error) {
	return k.groupRepo.List(ctx, offset, limit)
}

// Delete removes a key group and publishes the remaining groups.
func (k *keyGroupUseCase) Delete(ctx context.Context, groupID uuid.UUID) error {
	return k.change(ctx, func(ctx context.Context) error {
		return k.groupRepo.Delete(ctx, groupID)
	})
}

// change runs fn in a transaction together with the read of every group, and
// publishes that set once the transaction has committed.
func (k *keyGroupUseCase) change(ctx context.Context, fn func(ctx context.Context) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var groups []*groupsDomain.KeyGroup
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		if k.publisher == nil {
			return nil
		}
		var err error
		groups, err = k.groupRepo.ListAll(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if k.publisher != nil {
		k.publisher.SetGroups(groups)
	}
	return nil
}

// NewKeyGroupUseCase creates a new KeyGroupUseCase. publisher may be nil, in
// which case group changes become visible on the next cache refresh.
func NewKeyGroupUseCase(
	txManager database.TxManager,
	groupRepo KeyGroupRepository,
	publisher GroupPublisher,
) KeyGroupUseCase {
	return &keyGroupUseCase{
		txManager: txManager,
		groupRepo: groupRepo,
		publisher: publisher,
	}
}
