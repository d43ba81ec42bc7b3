// Package mocks provides mock implementations of the key group use case and repository.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
)

// MockKeyGroupUseCase is a mock implementation of KeyGroupUseCase for testing.
type MockKeyGroupUseCase struct {
	mock.Mock
}

func (m *MockKeyGroupUseCase) Create(
	ctx context.Context,
	input groupsDomain.KeyGroupInput,
) (*groupsDomain.KeyGroup, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*groupsDomain.KeyGroup), args.Error(1)
}

func (m *MockKeyGroupUseCase) Update(
	ctx context.Context,
	groupID uuid.UUID,
	input groupsDomain.KeyGroupInput,
) (*groupsDomain.KeyGroup, error) {
	args := m.Called(ctx, groupID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*groupsDomain.KeyGroup), args.Error(1)
}

func (m *MockKeyGroupUseCase) Get(ctx context.Context, groupID uuid.UUID) (*groupsDomain.KeyGroup, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*groupsDomain.KeyGroup), args.Error(1)
}

func (m *MockKeyGroupUseCase) List(ctx context.Context, offset, limit int) ([]*groupsDomain.KeyGroup, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*groupsDomain.KeyGroup), args.Error(1)
}

func (m *MockKeyGroupUseCase) Delete(ctx context.Context, groupID uuid.UUID) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

// MockKeyGroupRepository is a mock implementation of KeyGroupRepository for testing.
type MockKeyGroupRepository struct {
	mock.Mock
}

func (m *MockKeyGroupRepository) Create(ctx context.Context, group *groupsDomain.KeyGroup) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *MockKeyGroupRepository) Update(ctx context.Context, group *groupsDomain.KeyGroup) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *MockKeyGroupRepository) Delete(ctx context.Context, groupID uuid.UUID) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func (m *MockKeyGroupRepository) Get(ctx context.Context, groupID uuid.UUID) (*groupsDomain.KeyGroup, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*groupsDomain.KeyGroup), args.Error(1)
}

func (m *MockKeyGroupRepository) GetByName(ctx context.Context, name string) (*groupsDomain.KeyGroup, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*groupsDomain.KeyGroup), args.Error(1)
}

func (m *MockKeyGroupRepository) List(ctx context.Context, offset, limit int) ([]*groupsDomain.KeyGroup, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*groupsDomain.KeyGroup), args.Error(1)
}

func (m *MockKeyGroupRepository) ListAll(ctx context.Context) ([]*groupsDomain.KeyGroup, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*groupsDomain.KeyGroup), args.Error(1)
}
