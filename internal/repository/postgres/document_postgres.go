package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"docchat/internal/model"
	"docchat/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// CreateWithSegments inserts the document row and all segments in one transaction.
func (r *DocumentPostgres) CreateWithSegments(ctx context.Context, doc *model.Document, segments []model.Segment) (*model.Document, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("document requires at least one segment")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	suggestions, err := json.Marshal(doc.Suggestions)
	if err != nil {
		return nil, err
	}

	const qDoc = `
		INSERT INTO documents (id, owner_id, filename, storage_path, size, content_type, suggestions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, owner_id, filename, storage_path, size, content_type, created_at
	`
	var out model.Document
	if err := tx.QueryRowContext(ctx, qDoc,
		doc.ID,
		doc.OwnerID,
		doc.Filename,
		doc.StoragePath,
		doc.Size,
		doc.ContentType,
		suggestions,
		doc.CreatedAt,
	).Scan(
		&out.ID,
		&out.OwnerID,
		&out.Filename,
		&out.StoragePath,
		&out.Size,
		&out.ContentType,
		&out.CreatedAt,
	); err != nil {
		return nil, err
	}
	out.Suggestions = doc.Suggestions

	const qSeg = `
		INSERT INTO segments (id, document_id, ordinal, content, start_char, end_char, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i := range segments {
		s := &segments[i]
		if _, err := tx.ExecContext(ctx, qSeg,
			s.ID,
			out.ID,
			s.Ordinal,
			s.Content,
			s.StartChar,
			s.EndChar,
			s.Embedding,
			s.CreatedAt,
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID fetches a single document by its ID, scoped to the owner.
func (r *DocumentPostgres) FindByID(ctx context.Context, id, ownerID string) (*model.Document, error) {
	const q = `
		SELECT id, owner_id, filename, storage_path, size, content_type, suggestions, created_at
		FROM documents
		WHERE id = $1 AND owner_id = $2
	`
	row := r.db.QueryRowContext(ctx, q, id, ownerID)
	return scanDocument(row)
}

// List returns the owner's documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, ownerID string, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const qCount = `SELECT COUNT(*) FROM documents WHERE owner_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, ownerID).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT id, owner_id, filename, storage_path, size, content_type, suggestions, created_at
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, ownerID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}

// UpdateSuggestions stores precomputed prompt suggestions.
func (r *DocumentPostgres) UpdateSuggestions(ctx context.Context, id string, suggestions []string) error {
	payload, err := json.Marshal(suggestions)
	if err != nil {
		return err
	}
	const q = `UPDATE documents SET suggestions = $2 WHERE id = $1`
	_, err = r.db.ExecContext(ctx, q, id, payload)
	return err
}

// Delete removes a document by ID. Segments cascade via the schema foreign key.
// It does not return an error if the row does not exist.
func (r *DocumentPostgres) Delete(ctx context.Context, id, ownerID string) error {
	const q = `DELETE FROM documents WHERE id = $1 AND owner_id = $2`
	res, err := r.db.ExecContext(ctx, q, id, ownerID)
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		d           model.Document
		suggestions []byte
	)
	if err := row.Scan(
		&d.ID,
		&d.OwnerID,
		&d.Filename,
		&d.StoragePath,
		&d.Size,
		&d.ContentType,
		&suggestions,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(suggestions) > 0 {
		if err := json.Unmarshal(suggestions, &d.Suggestions); err != nil {
			return nil, fmt.Errorf("decode suggestions: %w", err)
		}
	}
	return &d, nil
}
