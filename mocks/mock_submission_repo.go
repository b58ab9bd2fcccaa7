package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"energodoc/internal/domain"
)

// MockSubmissionRepo is a mock implementation of port.SubmissionRepository.
type MockSubmissionRepo struct {
	mock.Mock
}

func (m *MockSubmissionRepo) Create(ctx context.Context, sub *domain.RawSubmission) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockSubmissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.RawSubmission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RawSubmission), args.Error(1)
}

func (m *MockSubmissionRepo) GetByHash(ctx context.Context, contentHash string) (*domain.RawSubmission, error) {
	args := m.Called(ctx, contentHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RawSubmission), args.Error(1)
}

func (m *MockSubmissionRepo) List(ctx context.Context, offset, limit int) ([]domain.RawSubmission, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.RawSubmission), args.Int(1), args.Error(2)
}

func (m *MockSubmissionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, lastErr *string) error {
	args := m.Called(ctx, id, status, lastErr)
	return args.Error(0)
}

func (m *MockSubmissionRepo) ClaimQueued(ctx context.Context, limit int, staleBefore time.Time) ([]domain.RawSubmission, error) {
	args := m.Called(ctx, limit, staleBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawSubmission), args.Error(1)
}

func (m *MockSubmissionRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSubmissionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
