package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docchat/internal/memory"
	"docchat/internal/model"
	"docchat/internal/pipeline"
	"docchat/internal/service"
	serviceMocks "docchat/internal/service/mocks"
	"docchat/internal/upload"
)

type testApp struct {
	app     *fiber.App
	docSvc  *serviceMocks.MockDocumentService
	chatSvc *serviceMocks.MockChatService
}

func newTestApp() *testApp {
	ta := &testApp{
		app:     fiber.New(fiber.Config{ErrorHandler: ErrorHandler()}),
		docSvc:  new(serviceMocks.MockDocumentService),
		chatSvc: new(serviceMocks.MockChatService),
	}
	RegisterRoutes(ta.app, nil, ta.docSvc, ta.chatSvc)
	return ta
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(OwnerHeader, "owner-1")
	return req
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	ta := newTestApp()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	RegisterRoutes(app, db, ta.docSvc, ta.chatSvc)

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	ta := newTestApp()
	resp, _ := ta.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInitUpload(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("InitializeUpload", mock.Anything, "owner-1", "report.pdf", int64(12*1024*1024), "application/pdf").
			Return(upload.Plan{PartSize: 2 * 1024 * 1024, PartCount: 6}, nil).Once()

		req := jsonRequest(http.MethodPost, "/uploads", initUploadRequest{
			Filename: "report.pdf", Size: 12 * 1024 * 1024, ContentType: "application/pdf",
		})
		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var plan upload.Plan
		json.NewDecoder(resp.Body).Decode(&plan)
		assert.Equal(t, 6, plan.PartCount)
		ta.docSvc.AssertExpectations(t)
	})

	t.Run("missing owner header", func(t *testing.T) {
		ta := newTestApp()
		req := jsonRequest(http.MethodPost, "/uploads", initUploadRequest{Filename: "x", Size: 1})
		req.Header.Del(OwnerHeader)

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "OWNER_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("unsupported media type", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("InitializeUpload", mock.Anything, "owner-1", "x.bin", int64(1), "application/zip").
			Return(upload.Plan{}, upload.ErrInvalidInput).Once()

		req := jsonRequest(http.MethodPost, "/uploads", initUploadRequest{
			Filename: "x.bin", Size: 1, ContentType: "application/zip",
		})
		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, resp).Error.Code)
	})
}

func TestUploadPart(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("UploadPart", mock.Anything, mock.MatchedBy(func(meta upload.PartMetadata) bool {
			return meta.OwnerID == "owner-1" &&
				meta.Filename == "notes.txt" &&
				meta.TotalSize == 40 &&
				meta.StartedAt.Unix() == 1760000000
		}), 2, []byte("part-bytes")).Return("session-1", false, nil).Once()

		req := httptest.NewRequest(http.MethodPut,
			"/uploads/parts?index=2&filename=notes.txt&size=40&content_type=text/plain&started_at=1760000000",
			bytes.NewReader([]byte("part-bytes")))
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body uploadPartResponse
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "session-1", body.SessionID)
		assert.False(t, body.Complete)
		ta.docSvc.AssertExpectations(t)
	})

	t.Run("missing started_at", func(t *testing.T) {
		ta := newTestApp()
		req := httptest.NewRequest(http.MethodPut, "/uploads/parts?index=0&size=40", nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_STARTED_AT", decodeError(t, resp).Error.Code)
	})

	t.Run("index out of range", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("UploadPart", mock.Anything, mock.Anything, 99, mock.Anything).
			Return("", false, upload.ErrInvalidChunkIndex).Once()

		req := httptest.NewRequest(http.MethodPut,
			"/uploads/parts?index=99&filename=notes.txt&size=40&content_type=text/plain&started_at=1760000000", nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestUploadProgress(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("UploadProgress", mock.Anything, "owner-1", "session-1").
			Return(model.UploadProgress{Uploaded: 2, Total: 6, Percentage: 100. / 3}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/uploads/session-1/progress", nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var progress model.UploadProgress
		json.NewDecoder(resp.Body).Decode(&progress)
		assert.Equal(t, 2, progress.Uploaded)
		assert.Equal(t, 6, progress.Total)
	})

	t.Run("unknown session", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("UploadProgress", mock.Anything, "owner-1", "nope").
			Return(model.UploadProgress{}, upload.ErrSessionNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/uploads/nope/progress", nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestCompleteUpload(t *testing.T) {
	tests := []struct {
		name       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"incomplete", upload.ErrIncompleteUpload, http.StatusConflict, "UPLOAD_INCOMPLETE"},
		{"foreign session", service.ErrAccessDenied, http.StatusForbidden, "ACCESS_DENIED"},
		{"embedding backend down", pipeline.ErrEmbeddingFailed, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"empty document", pipeline.ErrNoContent, http.StatusUnprocessableEntity, "NO_CONTENT"},
	}

	t.Run("success", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("CompleteUpload", mock.Anything, "owner-1", "session-1").
			Return(&model.Document{ID: "doc-1", Filename: "notes.txt"}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/uploads/session-1/complete", nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var doc model.Document
		json.NewDecoder(resp.Body).Decode(&doc)
		assert.Equal(t, "doc-1", doc.ID)
		ta.docSvc.AssertExpectations(t)
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp()
			ta.docSvc.On("CompleteUpload", mock.Anything, "owner-1", "session-1").
				Return(nil, tt.svcErr).Once()

			req := httptest.NewRequest(http.MethodPost, "/uploads/session-1/complete", nil)
			req.Header.Set(OwnerHeader, "owner-1")

			resp, _ := ta.app.Test(req)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
		})
	}
}

func TestCancelUpload(t *testing.T) {
	ta := newTestApp()
	ta.docSvc.On("CancelUpload", mock.Anything, "owner-1", "session-1").Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/uploads/session-1", nil)
	req.Header.Set(OwnerHeader, "owner-1")

	resp, _ := ta.app.Test(req)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	ta.docSvc.AssertExpectations(t)
}

func TestListDocuments(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("List", mock.Anything, "owner-1", 10, 0).Return(&service.DocumentListResult{
			Items: []model.Document{{ID: uuid.New().String(), Filename: "test.pdf"}},
			Total: 1,
		}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents?limit=10&offset=0", nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.DocumentListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
		ta.docSvc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		ta := newTestApp()
		req := httptest.NewRequest(http.MethodGet, "/documents?limit=abc", nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_LIMIT", decodeError(t, resp).Error.Code)
	})
}

func TestGetDocument(t *testing.T) {
	id := uuid.New().String()

	t.Run("success", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("Get", mock.Anything, "owner-1", id).
			Return(&model.Document{ID: id, Filename: "test.pdf"}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents/"+id, nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("invalid id", func(t *testing.T) {
		ta := newTestApp()
		req := httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid", nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
	})

	t.Run("not found", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("Get", mock.Anything, "owner-1", id).Return(nil, service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents/"+id, nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestDownloadDocument(t *testing.T) {
	id := uuid.New().String()
	ta := newTestApp()
	ta.docSvc.On("DownloadURL", mock.Anything, "owner-1", id).
		Return("https://example.com/presigned", nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/documents/"+id+"/download", nil)
	req.Header.Set(OwnerHeader, "owner-1")

	resp, _ := ta.app.Test(req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	assert.Equal(t, "https://example.com/presigned", body["url"])
}

func TestDeleteDocument(t *testing.T) {
	id := uuid.New().String()

	t.Run("success", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("Delete", mock.Anything, "owner-1", id).Return(nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		ta.docSvc.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		ta := newTestApp()
		ta.docSvc.On("Delete", mock.Anything, "owner-1", id).Return(errors.New("delete error")).Once()

		req := httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestCreateConversation(t *testing.T) {
	ta := newTestApp()
	ta.chatSvc.On("CreateConversation", mock.Anything, "owner-1", "budget review", []string{"doc-1"}).
		Return(&model.ConversationSession{ID: "conv-1", Title: "budget review"}, nil).Once()

	req := jsonRequest(http.MethodPost, "/conversations", createConversationRequest{
		Title: "budget review", DocumentIDs: []string{"doc-1"},
	})
	resp, _ := ta.app.Test(req)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var conv model.ConversationSession
	json.NewDecoder(resp.Body).Decode(&conv)
	assert.Equal(t, "conv-1", conv.ID)
	ta.chatSvc.AssertExpectations(t)
}

func TestSendMessage(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp()
		ta.chatSvc.On("SendMessage", mock.Anything, "owner-1", "conv-1", "what is the total?").
			Return(&service.ChatTurn{
				Reply:   model.Message{Role: model.RoleAssistant, Content: "42"},
				Sources: []model.ContextChunk{{Content: "totals are in section 3"}},
			}, nil).Once()

		req := jsonRequest(http.MethodPost, "/conversations/conv-1/messages", sendMessageRequest{
			Content: "what is the total?",
		})
		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var turn service.ChatTurn
		json.NewDecoder(resp.Body).Decode(&turn)
		assert.Equal(t, "42", turn.Reply.Content)
		assert.Len(t, turn.Sources, 1)
	})

	t.Run("empty content", func(t *testing.T) {
		ta := newTestApp()
		ta.chatSvc.On("SendMessage", mock.Anything, "owner-1", "conv-1", "").
			Return(nil, service.ErrEmptyMessage).Once()

		req := jsonRequest(http.MethodPost, "/conversations/conv-1/messages", sendMessageRequest{})
		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("summarization failure surfaces as upstream error", func(t *testing.T) {
		ta := newTestApp()
		ta.chatSvc.On("SendMessage", mock.Anything, "owner-1", "conv-1", "q").
			Return(nil, memory.ErrSummarizationFailed).Once()

		req := jsonRequest(http.MethodPost, "/conversations/conv-1/messages", sendMessageRequest{Content: "q"})
		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestConversationMemory(t *testing.T) {
	t.Run("stats", func(t *testing.T) {
		ta := newTestApp()
		ta.chatSvc.On("MemoryStats", mock.Anything, "owner-1", "conv-1").
			Return(&memory.Stats{MessageCount: 20, IsSummarized: true, Efficiency: 0.9}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1/memory", nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var stats memory.Stats
		json.NewDecoder(resp.Body).Decode(&stats)
		assert.True(t, stats.IsSummarized)
		assert.Equal(t, 20, stats.MessageCount)
	})

	t.Run("clear", func(t *testing.T) {
		ta := newTestApp()
		ta.chatSvc.On("ClearMemory", mock.Anything, "owner-1", "conv-1").Return(nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/memory/clear", nil)
		req.Header.Set(OwnerHeader, "owner-1")

		resp, _ := ta.app.Test(req)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

func TestAttachDocuments(t *testing.T) {
	ta := newTestApp()
	ta.chatSvc.On("AttachDocuments", mock.Anything, "owner-1", "conv-1", []string{"doc-1", "doc-2"}).
		Return(&model.ConversationSession{ID: "conv-1", DocumentIDs: []string{"doc-1", "doc-2"}}, nil).Once()

	req := jsonRequest(http.MethodPut, "/conversations/conv-1/documents", attachDocumentsRequest{
		DocumentIDs: []string{"doc-1", "doc-2"},
	})
	resp, _ := ta.app.Test(req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var conv model.ConversationSession
	json.NewDecoder(resp.Body).Decode(&conv)
	assert.Len(t, conv.DocumentIDs, 2)
}

func TestRouting(t *testing.T) {
	ta := newTestApp()

	t.Run("not found route", func(t *testing.T) {
		resp, _ := ta.app.Test(httptest.NewRequest(http.MethodGet, "/non-existent", nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		// Health endpoint only allows GET
		resp, _ := ta.app.Test(httptest.NewRequest(http.MethodPost, "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp).Error.Code)
	})
}
