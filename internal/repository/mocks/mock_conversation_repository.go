package mocks

import (
	"context"
	"time"

	"docchat/internal/model"
	"docchat/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) Create(ctx context.Context, conv *model.ConversationSession) (*model.ConversationSession, error) {
	args := m.Called(ctx, conv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConversationSession), args.Error(1)
}

func (m *MockConversationRepository) FindByID(ctx context.Context, id, ownerID string) (*model.ConversationSession, error) {
	args := m.Called(ctx, id, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConversationSession), args.Error(1)
}

func (m *MockConversationRepository) List(ctx context.Context, ownerID string, pq repository.PageQuery) (*repository.PageResult[model.ConversationSession], error) {
	args := m.Called(ctx, ownerID, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.ConversationSession]), args.Error(1)
}

func (m *MockConversationRepository) AttachDocuments(ctx context.Context, id, ownerID string, documentIDs []string) error {
	args := m.Called(ctx, id, ownerID, documentIDs)
	return args.Error(0)
}

func (m *MockConversationRepository) ApplySummary(ctx context.Context, id, summary string, at time.Time) error {
	args := m.Called(ctx, id, summary, at)
	return args.Error(0)
}

func (m *MockConversationRepository) ClearMemory(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockConversationRepository) Delete(ctx context.Context, id, ownerID string) error {
	args := m.Called(ctx, id, ownerID)
	return args.Error(0)
}

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Append(ctx context.Context, msg *model.Message) (*model.Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockMessageRepository) ListRecent(ctx context.Context, conversationID string, limit int, excludeSummarized bool) ([]model.Message, error) {
	args := m.Called(ctx, conversationID, limit, excludeSummarized)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *MockMessageRepository) ListUnsummarized(ctx context.Context, conversationID string) ([]model.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}
