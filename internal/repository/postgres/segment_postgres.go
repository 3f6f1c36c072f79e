package postgres

import (
	"context"
	"database/sql"

	"docchat/internal/model"
	"docchat/internal/repository"
)

// SegmentPostgres is a PostgreSQL implementation of repository.SegmentRepository.
type SegmentPostgres struct {
	db *sql.DB
}

// NewSegmentPostgres creates a new SegmentPostgres repository.
func NewSegmentPostgres(db *sql.DB) *SegmentPostgres {
	return &SegmentPostgres{db: db}
}

var _ repository.SegmentRepository = (*SegmentPostgres)(nil)

// ListByDocuments returns segments of the given documents ordered by
// (document_id, ordinal). When ownerID is non-empty the owning document must
// belong to that owner.
func (r *SegmentPostgres) ListByDocuments(ctx context.Context, documentIDs []string, ownerID string) ([]model.Segment, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	const q = `
		SELECT s.id, s.document_id, s.ordinal, s.content, s.start_char, s.end_char, s.embedding, s.created_at
		FROM segments s
		JOIN documents d ON d.id = s.document_id
		WHERE s.document_id = ANY($1)
		  AND ($2 = '' OR d.owner_id = $2)
		ORDER BY s.document_id, s.ordinal
	`
	rows, err := r.db.QueryContext(ctx, q, documentIDs, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Segment
	for rows.Next() {
		var s model.Segment
		if err := rows.Scan(
			&s.ID,
			&s.DocumentID,
			&s.Ordinal,
			&s.Content,
			&s.StartChar,
			&s.EndChar,
			&s.Embedding,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
