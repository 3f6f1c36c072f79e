package mocks

import (
	"context"

	"docchat/internal/memory"
	"docchat/internal/model"
	"docchat/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) CreateConversation(ctx context.Context, ownerID, title string, documentIDs []string) (*model.ConversationSession, error) {
	args := m.Called(ctx, ownerID, title, documentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConversationSession), args.Error(1)
}

func (m *MockChatService) GetConversation(ctx context.Context, ownerID, id string) (*model.ConversationSession, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConversationSession), args.Error(1)
}

func (m *MockChatService) ListConversations(ctx context.Context, ownerID string, limit, offset int) (*service.ConversationListResult, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ConversationListResult), args.Error(1)
}

func (m *MockChatService) AttachDocuments(ctx context.Context, ownerID, id string, documentIDs []string) (*model.ConversationSession, error) {
	args := m.Called(ctx, ownerID, id, documentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConversationSession), args.Error(1)
}

func (m *MockChatService) DeleteConversation(ctx context.Context, ownerID, id string) error {
	args := m.Called(ctx, ownerID, id)
	return args.Error(0)
}

func (m *MockChatService) SendMessage(ctx context.Context, ownerID, conversationID, content string) (*service.ChatTurn, error) {
	args := m.Called(ctx, ownerID, conversationID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChatTurn), args.Error(1)
}

func (m *MockChatService) MemoryStats(ctx context.Context, ownerID, conversationID string) (*memory.Stats, error) {
	args := m.Called(ctx, ownerID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*memory.Stats), args.Error(1)
}

func (m *MockChatService) ClearMemory(ctx context.Context, ownerID, conversationID string) error {
	args := m.Called(ctx, ownerID, conversationID)
	return args.Error(0)
}
