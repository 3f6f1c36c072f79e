package repository

import (
	"context"

	"docchat/internal/model"
)

// DocumentRepository defines data access for documents using SQL queries only.
// No business logic here, strictly persistence operations. Every read takes
// an ownerID and must scope the query to it; access control itself lives
// elsewhere, but the filter is always applied.
type DocumentRepository interface {
	// CreateWithSegments inserts the document row and all of its segments in
	// a single transaction. A document is never visible without segments.
	CreateWithSegments(ctx context.Context, doc *model.Document, segments []model.Segment) (*model.Document, error)

	// FindByID returns a document by its ID, scoped to the owner.
	FindByID(ctx context.Context, id, ownerID string) (*model.Document, error)

	// List returns a paginated list of the owner's documents and a total rows count.
	List(ctx context.Context, ownerID string, pq PageQuery) (*PageResult[model.Document], error)

	// UpdateSuggestions stores precomputed prompt suggestions for a document.
	UpdateSuggestions(ctx context.Context, id string, suggestions []string) error

	// Delete removes a document by ID; segments cascade at the schema level.
	// It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id, ownerID string) error
}

// SegmentRepository defines read access to persisted segments.
// Segments are written only through DocumentRepository.CreateWithSegments.
type SegmentRepository interface {
	// ListByDocuments returns every segment whose owning document is in
	// documentIDs and (when ownerID is non-empty) owned by ownerID, ordered
	// by (document_id, ordinal).
	ListByDocuments(ctx context.Context, documentIDs []string, ownerID string) ([]model.Segment, error)
}
