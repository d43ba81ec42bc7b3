package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	databaseMocks "github.com/allisson/keycache/internal/database/mocks"
	apperrors "github.com/allisson/keycache/internal/errors"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
	"github.com/allisson/keycache/internal/groups/usecase/mocks"
	keycacheDomain "github.com/allisson/keycache/internal/keycache/domain"
)

const (
	aliceFpr = "0123456789ABCDEF0123456789ABCDEF01234567"
	bobFpr   = "FEDCBA9876543210FEDCBA9876543210FEDCBA98"
)

// mockPublisher is a mock implementation of GroupPublisher for testing.
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) SetGroups(groups []*groupsDomain.KeyGroup) *keycacheDomain.Snapshot {
	m.Called(groups)
	return keycacheDomain.EmptySnapshot()
}

func passthroughTx(t *testing.T) *databaseMocks.MockTxManager {
	t.Helper()
	txManager := databaseMocks.NewMockTxManager(t)
	txManager.EXPECT().
		WithTx(mock.Anything, mock.AnythingOfType("func(context.Context) error")).
		RunAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		}).
		Maybe()
	return txManager
}

func TestKeyGroupUseCase_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_NormalizesAndPublishes", func(t *testing.T) {
		groupRepo := &mocks.MockKeyGroupRepository{}
		publisher := &mockPublisher{}

		groupRepo.On("GetByName", mock.Anything, "security-team").
			Return(nil, groupsDomain.ErrGroupNotFound).
			Once()
		groupRepo.On("Create", mock.Anything, mock.MatchedBy(func(g *groupsDomain.KeyGroup) bool {
			return g.Name == "security-team" &&
				g.ID != uuid.Nil &&
				len(g.Fingerprints) == 2 &&
				g.Fingerprints[0] == aliceFpr &&
				!g.CreatedAt.IsZero()
		})).
			Return(nil).
			Once()
		committed := []*groupsDomain.KeyGroup{{Name: "security-team", Fingerprints: []string{aliceFpr, bobFpr}}}
		groupRepo.On("ListAll", mock.Anything).Return(committed, nil).Once()
		publisher.On("SetGroups", committed).Once()

		uc := NewKeyGroupUseCase(passthroughTx(t), groupRepo, publisher)
		group, err := uc.Create(ctx, groupsDomain.KeyGroupInput{
			Name:         " Security-Team ",
			Description:  "incident response",
			Fingerprints: []string{"0123456789abcdef0123456789abcdef01234567", bobFpr},
		})

		require.NoError(t, err)
		assert.Equal(t, "security-team", group.Name)
		assert.Equal(t, []string{aliceFpr, bobFpr}, group.Fingerprints)
		groupRepo.AssertExpectations(t)
		publisher.AssertExpectations(t)
	})

	t.Run("Success_WithoutPublisher", func(t *testing.T) {
		groupRepo := &mocks.MockKeyGroupRepository{}
		groupRepo.On("GetByName", mock.Anything, "ops").Return(nil, groupsDomain.ErrGroupNotFound).Once()
		groupRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

		uc := NewKeyGroupUseCase(passthroughTx(t), groupRepo, nil)
		_, err := uc.Create(ctx, groupsDomain.KeyGroupInput{Name: "ops", Fingerprints: []string{aliceFpr}})

		assert.NoError(t, err)
		groupRepo.AssertExpectations(t)
	})

	t.Run("Error_DuplicateName", func(t *testing.T) {
		groupRepo := &mocks.MockKeyGroupRepository{}
		publisher := &mockPublisher{}
		groupRepo.On("GetByName", mock.Anything, "ops").
			Return(&groupsDomain.KeyGroup{ID: uuid.Must(uuid.NewV7()), Name: "ops"}, nil).
			Once()

		uc := NewKeyGroupUseCase(passthroughTx(t), groupRepo, publisher)
		group, err := uc.Create(ctx, groupsDomain.KeyGroupInput{Name: "OPS", Fingerprints: []string{aliceFpr}})

		assert.Nil(t, group)
		assert.ErrorIs(t, err, groupsDomain.ErrGroupAlreadyExists)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		groupRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		publisher.AssertNotCalled(t, "SetGroups", mock.Anything)
	})

	t.Run("Error_InvalidInput", func(t *testing.T) {
		groupRepo := &mocks.MockKeyGroupRepository{}
		txManager := databaseMocks.NewMockTxManager(t)

		uc := NewKeyGroupUseCase(txManager, groupRepo, nil)
		_, err := uc.Create(ctx, groupsDomain.KeyGroupInput{Name: "ops", Fingerprints: []string{"ABCD"}})

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		groupRepo.AssertExpectations(t)
	})

	t.Run("Error_RepositoryFails", func(t *testing.T) {
		groupRepo := &mocks.MockKeyGroupRepository{}
		groupRepo.On("GetByName", mock.Anything, "ops").Return(nil, assert.AnError).Once()

		uc := NewKeyGroupUseCase(passthroughTx(t), groupRepo, nil)
		_, err := uc.Create(ctx, groupsDomain.KeyGroupInput{Name: "ops", Fingerprints: []string{aliceFpr}})

		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestKeyGroupUseCase_Update(t *testing.T) {
	ctx := context.Background()
	groupID := uuid.Must(uuid.NewV7())
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	existing := func() *groupsDomain.KeyGroup {
		return &groupsDomain.KeyGroup{
			ID:           groupID,
			Name:         "ops",
			Fingerprints: []string{aliceFpr},
			CreatedAt:    created,
			UpdatedAt:    created,
		}
	}

	t.Run("Success_SameName", func(t *testing.T) {
		groupRepo := &mocks.MockKeyGroupRepository{}
		publisher := &mockPublisher{}
		groupRepo.On("Get", mock.Anything, groupID).Return(existing(), nil).Once()
		groupRepo.On("Update", mock.Anything, mock.MatchedBy(func(g *groupsDomain.KeyGroup) bool {
			return g.ID == groupID && len(g.Fingerprints) == 1 && g.Fingerprints[0] == bobFpr && g.UpdatedAt.After(created)
		})).Return(nil).Once()
		groupRepo.On("ListAll", mock.Anything).Return([]*groupsDomain.KeyGroup{existing()}, nil).Once()
		publisher.On("SetGroups", mock.Anything).Once()

		uc := NewKeyGroupUseCase(passthroughTx(t), groupRepo, publisher)
		group, err := uc.Update(ctx, groupID, groupsDomain.KeyGroupInput{Name: "Ops", Fingerprints: []string{bobFpr}})

		require.NoError(t, err)
		assert.Equal(t, created, group.CreatedAt)
		groupRepo.AssertNotCalled(t, "GetByName", mock.Anything, mock.Anything)
		groupRepo.AssertExpectations(t)
		publisher.AssertExpectations(t)
	})

	t.Run("Error_RenameToTakenName", func(t *testing.T) {
		groupRepo := &mocks.MockKeyGroupRepository{}
		groupRepo.On("Get", mock.Anything, groupID).Return(existing(), nil).Once()
		groupRepo.On("GetByName", mock.Anything, "dev").
			Return(&groupsDomain.KeyGroup{ID: uuid.Must(uuid.NewV7()), Name: "dev"}, nil).
			Once()

		uc := NewKeyGroupUseCase(passthroughTx(t), groupRepo, nil)
		_, err := uc.Update(ctx, groupID, groupsDomain.KeyGroupInput{Name: "dev", Fingerprints: []string{aliceFpr}})

		assert.ErrorIs(t, err, groupsDomain.ErrGroupAlreadyExists)
		groupRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		groupRepo := &mocks.MockKeyGroupRepository{}
		groupRepo.On("Get", mock.Anything, groupID).Return(nil, groupsDomain.ErrGroupNotFound).Once()

		uc := NewKeyGroupUseCase(passthroughTx(t), groupRepo, nil)
		_, err := uc.Update(ctx, groupID, groupsDomain.KeyGroupInput{Name: "ops", Fingerprints: []string{aliceFpr}})

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestKeyGroupUseCase_Delete(t *testing.T) {
	ctx := context.Background()
	groupID := uuid.Must(uuid.NewV7())

	t.Run("Success", func(t *testing.T) {
		groupRepo := &mocks.MockKeyGroupRepository{}
		publisher := &mockPublisher{}
		groupRepo.On("Delete", ctx, groupID).Return(nil).Once()
		groupRepo.On("ListAll", ctx).Return([]*groupsDomain.KeyGroup{}, nil).Once()
		publisher.On("SetGroups", []*groupsDomain.KeyGroup{}).Once()

		uc := NewKeyGroupUseCase(passthroughTx(t), groupRepo, publisher)
		assert.NoError(t, uc.Delete(ctx, groupID))
		publisher.AssertExpectations(t)
	})

	t.Run("Error_ListAllFailsSkipsPublish", func(t *testing.T) {
		groupRepo := &mocks.MockKeyGroupRepository{}
		publisher := &mockPublisher{}
		groupRepo.On("Delete", ctx, groupID).Return(nil).Once()
		groupRepo.On("ListAll", ctx).Return(nil, assert.AnError).Once()

		uc := NewKeyGroupUseCase(passthroughTx(t), groupRepo, publisher)
		assert.ErrorIs(t, uc.Delete(ctx, groupID), assert.AnError)
		publisher.AssertNotCalled(t, "SetGroups", mock.Anything)
	})

	t.Run("Error_NotFoundSkipsPublish", func(t *testing.T) {
		groupRepo := &mocks.MockKeyGroupRepository{}
		publisher := &mockPublisher{}
		groupRepo.On("Delete", ctx, groupID).Return(groupsDomain.ErrGroupNotFound).Once()

		uc := NewKeyGroupUseCase(passthroughTx(t), groupRepo, publisher)
		assert.ErrorIs(t, uc.Delete(ctx, groupID), groupsDomain.ErrGroupNotFound)
		publisher.AssertNotCalled(t, "SetGroups", mock.Anything)
	})
}

func TestKeyGroupUseCase_GetAndList(t *testing.T) {
	ctx := context.Background()
	group := &groupsDomain.KeyGroup{ID: uuid.Must(uuid.NewV7()), Name: "ops"}

	groupRepo := &mocks.MockKeyGroupRepository{}
	groupRepo.On("Get", ctx, group.ID).Return(group, nil).Once()
	groupRepo.On("List", ctx, 0, 50).Return([]*groupsDomain.KeyGroup{group}, nil).Once()

	uc := NewKeyGroupUseCase(passthroughTx(t), groupRepo, nil)

	got, err := uc.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, group, got)

	list, err := uc.List(ctx, 0, 50)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	groupRepo.AssertExpectations(t)
}
