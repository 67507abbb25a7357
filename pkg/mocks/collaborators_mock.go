package mocks

import (
	"context"

	"github.com/dukex/pagebot/pkg/ai"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockCompleter is a mock implementation of ai.Completer interface.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, request ai.CompletionRequest) (string, error) {
	args := m.Called(ctx, request)

	return args.String(0), args.Error(1)
}

// MockCatalog is a mock implementation of the product catalog lookup.
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetProducts(ctx context.Context, productGroupID string, limit int) ([]models.Product, error) {
	args := m.Called(ctx, productGroupID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Product), args.Error(1)
}
