package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"docchat/internal/ai"
	"docchat/internal/config"
	"docchat/internal/model"
	"docchat/internal/repository"
)

var (
	// ErrEmbeddingFailed wraps any embedding backend failure. Ingestion of the
	// whole document aborts; there is no partial-document persistence.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrNoContent is returned when extraction produces no text to segment.
	ErrNoContent = errors.New("document has no extractable text")
)

// Pipeline turns a materialized document blob into a persisted Document with
// embedded Segments. The document row and all segment rows are written in one
// transaction, so a document is never visible without its segments.
type Pipeline struct {
	docRepo   repository.DocumentRepository
	embedder  ai.Embedder
	segmenter *Segmenter
	workers   int
}

// New creates a pipeline using the given repository and embedding backend.
func New(docRepo repository.DocumentRepository, embedder ai.Embedder, cfg config.PipelineConfig) *Pipeline {
	workers := cfg.EmbedWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		docRepo:   docRepo,
		embedder:  embedder,
		segmenter: NewSegmenter(cfg.SegmentSize, cfg.SegmentOverlap),
		workers:   workers,
	}
}

// Ingest extracts text from the blob, segments it, embeds every segment with
// bounded concurrency, and persists the document atomically with its
// segments. Any embedding failure aborts the whole document.
func (p *Pipeline) Ingest(ctx context.Context, ownerID, filename, mediaType, storagePath string, data []byte) (*model.Document, error) {
	text, err := ExtractText(data, mediaType)
	if err != nil {
		return nil, err
	}

	spans := p.segmenter.Segment(text)
	if len(spans) == 0 {
		return nil, ErrNoContent
	}

	vectors := make([][]float32, len(spans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range spans {
		i := i // per-iteration copy; required while go.mod targets go < 1.22
		g.Go(func() error {
			vec, err := p.embedder.Embed(gctx, spans[i].Content)
			if err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			if len(vec) == 0 {
				return fmt.Errorf("segment %d: empty vector", i)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	now := time.Now().UTC()
	doc := &model.Document{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Filename:    filename,
		StoragePath: storagePath,
		Size:        int64(len(data)),
		ContentType: mediaType,
		CreatedAt:   now,
	}
	segments := make([]model.Segment, len(spans))
	for i, span := range spans {
		segments[i] = model.Segment{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Ordinal:    i,
			Content:    span.Content,
			StartChar:  span.StartChar,
			EndChar:    span.EndChar,
			Embedding:  pgvector.NewVector(vectors[i]),
			CreatedAt:  now,
		}
	}

	stored, err := p.docRepo.CreateWithSegments(ctx, doc, segments)
	if err != nil {
		return nil, fmt.Errorf("persist document: %w", err)
	}
	return stored, nil
}
