// Package mocks provides testify mocks for the resolver use cases.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/keycache/internal/resolver/domain"
	"github.com/allisson/keycache/internal/resolver/usecase"
)

// MockResolverUseCase is a mock implementation of usecase.ResolverUseCase.
type MockResolverUseCase struct {
	mock.Mock
}

func (m *MockResolverUseCase) Resolve(ctx context.Context, req domain.Request) (*domain.Result, error) {
	args := m.Called(ctx, req)
	var result *domain.Result
	if v := args.Get(0); v != nil {
		result = v.(*domain.Result)
	}
	return result, args.Error(1)
}

func (m *MockResolverUseCase) NewKeyResolver(encrypt, sign bool, approver usecase.Approver) *usecase.KeyResolver {
	args := m.Called(encrypt, sign, approver)
	if v := args.Get(0); v != nil {
		return v.(*usecase.KeyResolver)
	}
	return nil
}

var _ usecase.ResolverUseCase = (*MockResolverUseCase)(nil)
