package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"energodoc/internal/port"
)

// MockSemanticMapper is a mock implementation of port.SemanticMapper.
type MockSemanticMapper struct {
	mock.Mock
}

func (m *MockSemanticMapper) ProposeMapping(ctx context.Context, req port.MappingRequest) (*port.MappingProposal, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.MappingProposal), args.Error(1)
}

// MockProposalCache is a mock implementation of port.ProposalCache.
type MockProposalCache struct {
	mock.Mock
}

func (m *MockProposalCache) Get(ctx context.Context, key string) (*port.MappingProposal, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*port.MappingProposal), args.Bool(1), args.Error(2)
}

func (m *MockProposalCache) Set(ctx context.Context, key string, p *port.MappingProposal, ttl time.Duration) error {
	args := m.Called(ctx, key, p, ttl)
	return args.Error(0)
}
