package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Document represents a fully materialized uploaded file.
// This is a pure domain model with no database-specific dependencies or tags.
// It can be used across layers (HTTP, service, storage) without coupling to persistence.
//
// A Document only becomes visible together with its first Segment batch; a
// document with zero segments is never persisted.
type Document struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"storage_path"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Suggestions []string  `json:"suggestions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Segment is a contiguous span of a document's extracted text together with
// its embedding vector. Offsets refer to character positions in the source
// text; consecutive segments may share a bounded overlap window. Segments are
// immutable once created and are removed only by cascading document deletion.
type Segment struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	Ordinal    int             `json:"ordinal"`
	Content    string          `json:"content"`
	StartChar  int             `json:"start_char"`
	EndChar    int             `json:"end_char"`
	Embedding  pgvector.Vector `json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
}
