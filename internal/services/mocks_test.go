package services

import (
	"context"
	"net/http"

	"github.com/stretchr/testify/mock"

	"github.com/ekenegodwins22-eng/verifyhub/internal/middleware"
	"github.com/ekenegodwins22-eng/verifyhub/internal/provider"
)

// requestAs attaches an authenticated user to a test request.
func requestAs(r *http.Request, userID int64) *http.Request {
	return r.WithContext(middleware.WithUser(r.Context(), userID, ""))
}

type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) AcquireNumber(ctx context.Context, service, country string) (provider.AcquireResult, error) {
	args := m.Called(ctx, service, country)
	return args.Get(0).(provider.AcquireResult), args.Error(1)
}

func (m *MockAdapter) PollCode(ctx context.Context, providerOrderID string) (provider.PollResult, error) {
	args := m.Called(ctx, providerOrderID)
	return args.Get(0).(provider.PollResult), args.Error(1)
}

func (m *MockAdapter) Release(ctx context.Context, providerOrderID string) error {
	args := m.Called(ctx, providerOrderID)
	return args.Error(0)
}

func (m *MockAdapter) Balance(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockAdapter) Prices(ctx context.Context) (map[string]map[string]float64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]map[string]float64), args.Error(1)
}
