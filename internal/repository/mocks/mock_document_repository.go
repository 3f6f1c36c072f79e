package mocks

import (
	"context"

	"docchat/internal/model"
	"docchat/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) CreateWithSegments(ctx context.Context, doc *model.Document, segments []model.Segment) (*model.Document, error) {
	args := m.Called(ctx, doc, segments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindByID(ctx context.Context, id, ownerID string) (*model.Document, error) {
	args := m.Called(ctx, id, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) List(ctx context.Context, ownerID string, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	args := m.Called(ctx, ownerID, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Document]), args.Error(1)
}

func (m *MockDocumentRepository) UpdateSuggestions(ctx context.Context, id string, suggestions []string) error {
	args := m.Called(ctx, id, suggestions)
	return args.Error(0)
}

func (m *MockDocumentRepository) Delete(ctx context.Context, id, ownerID string) error {
	args := m.Called(ctx, id, ownerID)
	return args.Error(0)
}

type MockSegmentRepository struct {
	mock.Mock
}

func (m *MockSegmentRepository) ListByDocuments(ctx context.Context, documentIDs []string, ownerID string) ([]model.Segment, error) {
	args := m.Called(ctx, documentIDs, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Segment), args.Error(1)
}
