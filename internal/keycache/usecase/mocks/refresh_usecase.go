// Package mocks provides mock implementations of the key cache use cases.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/keycache/domain"
)

// MockRefreshUseCase is a mock implementation of RefreshUseCase for testing.
type MockRefreshUseCase struct {
	mock.Mock
}

// StartRefresh mocks the StartRefresh method of RefreshUseCase.
func (m *MockRefreshUseCase) StartRefresh(
	ctx context.Context,
	protocols ...certDomain.Protocol,
) <-chan domain.RefreshResult {
	args := m.Called(ctx, protocols)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(<-chan domain.RefreshResult)
}

// Refresh mocks the Refresh method of RefreshUseCase.
func (m *MockRefreshUseCase) Refresh(
	ctx context.Context,
	protocols ...certDomain.Protocol,
) (domain.RefreshResult, error) {
	args := m.Called(ctx, protocols)
	return args.Get(0).(domain.RefreshResult), args.Error(1)
}

// Subscribe mocks the Subscribe method of RefreshUseCase.
func (m *MockRefreshUseCase) Subscribe(fn func(domain.RefreshResult)) func() {
	args := m.Called(fn)
	if args.Get(0) == nil {
		return func() {}
	}
	return args.Get(0).(func())
}

// Close mocks the Close method of RefreshUseCase.
func (m *MockRefreshUseCase) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Resolved returns an already completed refresh future.
func Resolved(result domain.RefreshResult) <-chan domain.RefreshResult {
	ch := make(chan domain.RefreshResult, 1)
	ch <- result
	close(ch)
	return ch
}
