package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docchat/internal/ai"
	"docchat/internal/model"
	"docchat/internal/pipeline"
	"docchat/internal/repository"
	"docchat/internal/storage"
	"docchat/internal/upload"
)

const (
	downloadURLExpiry  = 15 * time.Minute
	suggestionExcerpt  = 2000
	maxSuggestions     = 3
	suggestionTemplate = "Propose up to three short questions a reader might ask about the following document excerpt. Answer with one question per line, no numbering.\n\n%s"
)

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// DocumentService defines the use cases for resumable uploads and documents.
type DocumentService interface {
	// InitializeUpload validates a declared upload and returns its part plan.
	InitializeUpload(ctx context.Context, ownerID, filename string, size int64, contentType string) (upload.Plan, error)

	// UploadPart stores one part of an in-progress upload and reports whether
	// every part of the session has now arrived.
	UploadPart(ctx context.Context, meta upload.PartMetadata, index int, data []byte) (sessionID string, complete bool, err error)

	// UploadProgress reports how many parts of the owner's session have arrived.
	UploadProgress(ctx context.Context, ownerID, sessionID string) (model.UploadProgress, error)

	// CancelUpload discards an in-progress upload session and its parts.
	CancelUpload(ctx context.Context, ownerID, sessionID string) error

	// CompleteUpload merges a finished session into a single blob, runs it
	// through the ingestion pipeline, and returns the persisted document.
	// Session parts are cleaned up only after a successful ingest.
	CompleteUpload(ctx context.Context, ownerID, sessionID string) (*model.Document, error)

	// List returns the owner's documents using limit/offset and a total count.
	List(ctx context.Context, ownerID string, limit, offset int) (*DocumentListResult, error)

	// Get returns a single document by its ID, scoped to the owner.
	Get(ctx context.Context, ownerID, id string) (*model.Document, error)

	// DownloadURL returns a time-limited URL for the document's blob.
	DownloadURL(ctx context.Context, ownerID, id string) (string, error)

	// Delete removes a document; its segments cascade and its blob is removed
	// best-effort.
	Delete(ctx context.Context, ownerID, id string) error
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	uploads   *upload.Manager
	pipe      *pipeline.Pipeline
	store     storage.Storage
	docs      repository.DocumentRepository
	completer ai.Completer
}

// NewDocumentService constructs a new DocumentService. completer may be nil;
// prompt suggestions are then skipped.
func NewDocumentService(uploads *upload.Manager, pipe *pipeline.Pipeline, store storage.Storage, docs repository.DocumentRepository, completer ai.Completer) DocumentService {
	return &documentService{
		uploads:   uploads,
		pipe:      pipe,
		store:     store,
		docs:      docs,
		completer: completer,
	}
}

func (s *documentService) InitializeUpload(ctx context.Context, ownerID, filename string, size int64, contentType string) (upload.Plan, error) {
	return s.uploads.Initialize(ctx, ownerID, filename, size, contentType)
}

func (s *documentService) UploadPart(ctx context.Context, meta upload.PartMetadata, index int, data []byte) (string, bool, error) {
	sessionID, err := s.uploads.StorePart(ctx, meta, index, data)
	if err != nil {
		return "", false, err
	}
	complete, err := s.uploads.IsComplete(ctx, sessionID)
	if err != nil {
		return "", false, err
	}
	return sessionID, complete, nil
}

func (s *documentService) UploadProgress(ctx context.Context, ownerID, sessionID string) (model.UploadProgress, error) {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return model.UploadProgress{}, err
	}
	return s.uploads.Progress(ctx, sessionID)
}

func (s *documentService) CancelUpload(ctx context.Context, ownerID, sessionID string) error {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return err
	}
	s.uploads.Cancel(ctx, sessionID)
	return nil
}

// CompleteUpload merges, ingests, then discards session parts. The merged
// blob becomes the document's storage path; if ingestion fails the blob is
// deleted best-effort so nothing user-visible is left behind.
func (s *documentService) CompleteUpload(ctx context.Context, ownerID, sessionID string) (*model.Document, error) {
	session, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	ext := filepath.Ext(session.Filename)
	destKey := "documents/" + uuid.New().String() + ext

	if _, err := s.uploads.Merge(ctx, sessionID, destKey); err != nil {
		return nil, err
	}

	rc, _, err := s.store.Get(ctx, destKey)
	if err != nil {
		return nil, fmt.Errorf("read merged document: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("read merged document: %w", err)
	}

	doc, err := s.pipe.Ingest(ctx, ownerID, session.Filename, session.ContentType, destKey, data)
	if err != nil {
		if delErr := s.store.Delete(ctx, destKey); delErr != nil {
			log.Printf("complete upload: delete merged blob %s: %v", destKey, delErr)
		}
		return nil, err
	}

	s.uploads.Cancel(ctx, sessionID)
	s.generateSuggestions(ctx, doc, data)
	return doc, nil
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, ownerID string, limit, offset int) (*DocumentListResult, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.docs.List(ctx, ownerID, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *documentService) Get(ctx context.Context, ownerID, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	doc, err := s.docs.FindByID(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *documentService) DownloadURL(ctx context.Context, ownerID, id string) (string, error) {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	return s.store.PresignGet(ctx, doc.StoragePath, downloadURLExpiry)
}

// Delete removes the document row (segments cascade) and then the blob. A
// failing blob delete is logged and swallowed: failing a user-facing delete
// over stale internal housekeeping leaves the user worse off than an orphaned
// object the next audit sweep can reclaim.
func (s *documentService) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, doc.StoragePath); err != nil {
		log.Printf("delete document %s: delete blob %s: %v", id, doc.StoragePath, err)
	}
	return nil
}

// ownedSession loads a session descriptor and checks caller ownership.
func (s *documentService) ownedSession(ctx context.Context, ownerID, sessionID string) (*model.UploadSession, error) {
	if sessionID == "" {
		return nil, ErrIDRequired
	}
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	session, err := s.uploads.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, ErrAccessDenied
	}
	return session, nil
}

// generateSuggestions asks the completion backend for a few starter questions
// about the document and stores them. Best-effort: the document is already
// persisted, so every failure here is logged and swallowed.
func (s *documentService) generateSuggestions(ctx context.Context, doc *model.Document, data []byte) {
	if s.completer == nil {
		return
	}
	text, err := pipeline.ExtractText(data, doc.ContentType)
	if err != nil || strings.TrimSpace(text) == "" {
		return
	}
	if len(text) > suggestionExcerpt {
		text = text[:suggestionExcerpt]
	}

	raw, err := s.completer.Complete(ctx, fmt.Sprintf(suggestionTemplate, text), nil)
	if err != nil {
		log.Printf("suggestions for document %s: %v", doc.ID, err)
		return
	}

	var suggestions []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		suggestions = append(suggestions, line)
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	if len(suggestions) == 0 {
		return
	}
	if err := s.docs.UpdateSuggestions(ctx, doc.ID, suggestions); err != nil {
		log.Printf("suggestions for document %s: %v", doc.ID, err)
		return
	}
	doc.Suggestions = suggestions
}
