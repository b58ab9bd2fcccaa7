package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"energodoc/internal/domain"
	"energodoc/internal/service"
)

// MockSubmissionService is a mock implementation of service.SubmissionService.
type MockSubmissionService struct {
	mock.Mock
}

func (m *MockSubmissionService) Submit(ctx context.Context, input service.SubmitInput) (*domain.RawSubmission, bool, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.RawSubmission), args.Bool(1), args.Error(2)
}

func (m *MockSubmissionService) Get(ctx context.Context, id uuid.UUID) (*domain.RawSubmission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RawSubmission), args.Error(1)
}

func (m *MockSubmissionService) List(ctx context.Context, offset, limit int) ([]domain.RawSubmission, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.RawSubmission), args.Int(1), args.Error(2)
}

func (m *MockSubmissionService) Process(ctx context.Context, sub *domain.RawSubmission, maxAttempts int) {
	m.Called(ctx, sub, maxAttempts)
}

func (m *MockSubmissionService) Reprocess(ctx context.Context, id uuid.UUID) (*domain.RawSubmission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RawSubmission), args.Error(1)
}

func (m *MockSubmissionService) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSubmissionService) Canonical(ctx context.Context, id uuid.UUID) (*domain.CanonicalVersion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CanonicalVersion), args.Error(1)
}

func (m *MockSubmissionService) Versions(ctx context.Context, id uuid.UUID) ([]domain.CanonicalVersion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CanonicalVersion), args.Error(1)
}

func (m *MockSubmissionService) Readiness(ctx context.Context, id uuid.UUID) ([]domain.ReadinessReport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ReadinessReport), args.Error(1)
}
