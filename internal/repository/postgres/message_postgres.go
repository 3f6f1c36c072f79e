package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"docchat/internal/model"
	"docchat/internal/repository"
)

// MessagePostgres is a PostgreSQL implementation of repository.MessageRepository.
type MessagePostgres struct {
	db *sql.DB
}

// NewMessagePostgres creates a new MessagePostgres repository.
func NewMessagePostgres(db *sql.DB) *MessagePostgres {
	return &MessagePostgres{db: db}
}

var _ repository.MessageRepository = (*MessagePostgres)(nil)

// Append inserts the message and bumps the session's message count in one transaction.
func (r *MessagePostgres) Append(ctx context.Context, msg *model.Message) (*model.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var contextPayload any
	if msg.Context != nil {
		b, err := json.Marshal(msg.Context)
		if err != nil {
			return nil, err
		}
		contextPayload = b
	}

	const qInsert = `
		INSERT INTO messages (id, conversation_id, role, content, context, summarized, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		RETURNING id, conversation_id, role, content, summarized, created_at
	`
	var out model.Message
	if err := tx.QueryRowContext(ctx, qInsert,
		msg.ID,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		contextPayload,
		msg.CreatedAt,
	).Scan(
		&out.ID,
		&out.ConversationID,
		&out.Role,
		&out.Content,
		&out.Summarized,
		&out.CreatedAt,
	); err != nil {
		return nil, err
	}
	out.Context = msg.Context

	const qBump = `
		UPDATE conversations
		SET message_count = message_count + 1, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, qBump, msg.ConversationID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRecent returns up to limit newest messages in chronological order.
func (r *MessagePostgres) ListRecent(ctx context.Context, conversationID string, limit int, excludeSummarized bool) ([]model.Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, context, summarized, created_at
		FROM (
			SELECT id, conversation_id, role, content, context, summarized, created_at
			FROM messages
			WHERE conversation_id = $1 AND ($3 = FALSE OR summarized = FALSE)
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, q, conversationID, limit, excludeSummarized)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ListUnsummarized returns every non-summarized message in chronological order.
func (r *MessagePostgres) ListUnsummarized(ctx context.Context, conversationID string) ([]model.Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, context, summarized, created_at
		FROM messages
		WHERE conversation_id = $1 AND summarized = FALSE
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]model.Message, error) {
	var items []model.Message
	for rows.Next() {
		var (
			m       model.Message
			context []byte
		)
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.Role,
			&m.Content,
			&context,
			&m.Summarized,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(context) > 0 {
			var rc model.RetrievedContext
			if err := json.Unmarshal(context, &rc); err != nil {
				return nil, fmt.Errorf("decode message context: %w", err)
			}
			m.Context = &rc
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
