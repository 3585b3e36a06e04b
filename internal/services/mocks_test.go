package services

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockBalanceCache struct {
	mock.Mock
}

func (m *MockBalanceCache) Get(ctx context.Context, key BalanceKey) (int64, int64, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Get(1).(int64), args.Bool(2), args.Error(3)
}

func (m *MockBalanceCache) Set(ctx context.Context, key BalanceKey, generation int64, balance int64) error {
	args := m.Called(ctx, key, generation, balance)
	return args.Error(0)
}

func (m *MockBalanceCache) Invalidate(ctx context.Context, tenantID string, accountIDs []string) error {
	args := m.Called(ctx, tenantID, accountIDs)
	return args.Error(0)
}
