package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"docchat/internal/model"
	"docchat/internal/repository"
)

// ConversationPostgres is a PostgreSQL implementation of repository.ConversationRepository.
type ConversationPostgres struct {
	db *sql.DB
}

// NewConversationPostgres creates a new ConversationPostgres repository.
func NewConversationPostgres(db *sql.DB) *ConversationPostgres {
	return &ConversationPostgres{db: db}
}

var _ repository.ConversationRepository = (*ConversationPostgres)(nil)

// Create inserts a new conversation session row.
func (r *ConversationPostgres) Create(ctx context.Context, conv *model.ConversationSession) (*model.ConversationSession, error) {
	docIDs, err := json.Marshal(conv.DocumentIDs)
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO conversations (id, owner_id, title, document_ids, message_count, summarized, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, FALSE, $5, $5)
		RETURNING id, owner_id, title, message_count, summarized, created_at, updated_at
	`
	var out model.ConversationSession
	if err := r.db.QueryRowContext(ctx, q,
		conv.ID,
		conv.OwnerID,
		conv.Title,
		docIDs,
		conv.CreatedAt,
	).Scan(
		&out.ID,
		&out.OwnerID,
		&out.Title,
		&out.MessageCount,
		&out.Summarized,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return nil, err
	}
	out.DocumentIDs = conv.DocumentIDs
	return &out, nil
}

// FindByID fetches a conversation by ID, scoped to the owner.
func (r *ConversationPostgres) FindByID(ctx context.Context, id, ownerID string) (*model.ConversationSession, error) {
	const q = `
		SELECT id, owner_id, title, document_ids, message_count, summarized, summary, summarized_at, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND owner_id = $2
	`
	row := r.db.QueryRowContext(ctx, q, id, ownerID)
	return scanConversation(row)
}

// List returns the owner's conversations using LIMIT/OFFSET pagination and a total count.
func (r *ConversationPostgres) List(ctx context.Context, ownerID string, pq repository.PageQuery) (*repository.PageResult[model.ConversationSession], error) {
	const qCount = `SELECT COUNT(*) FROM conversations WHERE owner_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, ownerID).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT id, owner_id, title, document_ids, message_count, summarized, summary, summarized_at, created_at, updated_at
		FROM conversations
		WHERE owner_id = $1
		ORDER BY updated_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, ownerID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.ConversationSession, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.ConversationSession]{
		Items: items,
		Total: total,
	}, nil
}

// AttachDocuments replaces the conversation's retrievable document set.
func (r *ConversationPostgres) AttachDocuments(ctx context.Context, id, ownerID string, documentIDs []string) error {
	payload, err := json.Marshal(documentIDs)
	if err != nil {
		return err
	}
	const q = `
		UPDATE conversations
		SET document_ids = $3, updated_at = now()
		WHERE id = $1 AND owner_id = $2
	`
	res, err := r.db.ExecContext(ctx, q, id, ownerID, payload)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApplySummary commits the compaction result: summary fields on the session
// and summarized flags on every included message, in one transaction.
func (r *ConversationPostgres) ApplySummary(ctx context.Context, id, summary string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const qSession = `
		UPDATE conversations
		SET summarized = TRUE, summary = $2, summarized_at = $3, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, qSession, id, summary, at); err != nil {
		return err
	}

	const qMessages = `
		UPDATE messages
		SET summarized = TRUE
		WHERE conversation_id = $1 AND summarized = FALSE
	`
	if _, err := tx.ExecContext(ctx, qMessages, id); err != nil {
		return err
	}

	return tx.Commit()
}

// ClearMemory resets memory-accounting state without deleting messages.
func (r *ConversationPostgres) ClearMemory(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const qSession = `
		UPDATE conversations
		SET summarized = FALSE, summary = NULL, summarized_at = NULL, message_count = 0, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, qSession, id); err != nil {
		return err
	}

	const qMessages = `UPDATE messages SET summarized = FALSE WHERE conversation_id = $1`
	if _, err := tx.ExecContext(ctx, qMessages, id); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete removes a conversation by ID. Messages cascade via the schema foreign key.
func (r *ConversationPostgres) Delete(ctx context.Context, id, ownerID string) error {
	const q = `DELETE FROM conversations WHERE id = $1 AND owner_id = $2`
	res, err := r.db.ExecContext(ctx, q, id, ownerID)
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected()
	return nil
}

func scanConversation(row rowScanner) (*model.ConversationSession, error) {
	var (
		c            model.ConversationSession
		docIDs       []byte
		summary      sql.NullString
		summarizedAt sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Title,
		&docIDs,
		&c.MessageCount,
		&c.Summarized,
		&summary,
		&summarizedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(docIDs) > 0 {
		if err := json.Unmarshal(docIDs, &c.DocumentIDs); err != nil {
			return nil, fmt.Errorf("decode document ids: %w", err)
		}
	}
	if summary.Valid {
		c.Summary = summary.String
	}
	if summarizedAt.Valid {
		t := summarizedAt.Time
		c.SummarizedAt = &t
	}
	return &c, nil
}
