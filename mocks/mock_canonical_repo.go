package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"energodoc/internal/domain"
)

// MockCanonicalRepo is a mock implementation of port.CanonicalRepository.
type MockCanonicalRepo struct {
	mock.Mock
}

func (m *MockCanonicalRepo) SaveVersion(ctx context.Context, v *domain.CanonicalVersion) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockCanonicalRepo) GetCurrent(ctx context.Context, submissionID uuid.UUID) (*domain.CanonicalVersion, error) {
	args := m.Called(ctx, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CanonicalVersion), args.Error(1)
}

func (m *MockCanonicalRepo) ListVersions(ctx context.Context, submissionID uuid.UUID) ([]domain.CanonicalVersion, error) {
	args := m.Called(ctx, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CanonicalVersion), args.Error(1)
}
