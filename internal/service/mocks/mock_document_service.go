package mocks

import (
	"context"

	"docchat/internal/model"
	"docchat/internal/service"
	"docchat/internal/upload"
	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) InitializeUpload(ctx context.Context, ownerID, filename string, size int64, contentType string) (upload.Plan, error) {
	args := m.Called(ctx, ownerID, filename, size, contentType)
	return args.Get(0).(upload.Plan), args.Error(1)
}

func (m *MockDocumentService) UploadPart(ctx context.Context, meta upload.PartMetadata, index int, data []byte) (string, bool, error) {
	args := m.Called(ctx, meta, index, data)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockDocumentService) UploadProgress(ctx context.Context, ownerID, sessionID string) (model.UploadProgress, error) {
	args := m.Called(ctx, ownerID, sessionID)
	return args.Get(0).(model.UploadProgress), args.Error(1)
}

func (m *MockDocumentService) CancelUpload(ctx context.Context, ownerID, sessionID string) error {
	args := m.Called(ctx, ownerID, sessionID)
	return args.Error(0)
}

func (m *MockDocumentService) CompleteUpload(ctx context.Context, ownerID, sessionID string) (*model.Document, error) {
	args := m.Called(ctx, ownerID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, ownerID string, limit, offset int) (*service.DocumentListResult, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, ownerID, id string) (*model.Document, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) DownloadURL(ctx context.Context, ownerID, id string) (string, error) {
	args := m.Called(ctx, ownerID, id)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, ownerID, id string) error {
	args := m.Called(ctx, ownerID, id)
	return args.Error(0)
}
