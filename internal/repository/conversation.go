package repository

import (
	"context"
	"time"

	"docchat/internal/model"
)

// ConversationRepository defines data access for conversation sessions.
type ConversationRepository interface {
	// Create inserts a new conversation session.
	Create(ctx context.Context, conv *model.ConversationSession) (*model.ConversationSession, error)

	// FindByID returns a conversation by ID, scoped to the owner.
	FindByID(ctx context.Context, id, ownerID string) (*model.ConversationSession, error)

	// List returns a paginated list of the owner's conversations.
	List(ctx context.Context, ownerID string, pq PageQuery) (*PageResult[model.ConversationSession], error)

	// AttachDocuments replaces the set of documents the conversation may retrieve from.
	AttachDocuments(ctx context.Context, id, ownerID string, documentIDs []string) error

	// ApplySummary atomically stores the summary text and timestamp, sets
	// summarized=true, and flags every currently-unsummarized message of the
	// conversation as summarized. All three happen in one transaction so a
	// reader can never observe summarized=true with a missing summary.
	ApplySummary(ctx context.Context, id, summary string, at time.Time) error

	// ClearMemory resets summary text/timestamp, summarized flag and message
	// count on the session, and resets every message's summarized flag.
	// Messages themselves are not deleted.
	ClearMemory(ctx context.Context, id string) error

	// Delete removes a conversation by ID; messages cascade at the schema level.
	Delete(ctx context.Context, id, ownerID string) error
}

// MessageRepository defines data access for conversation messages.
type MessageRepository interface {
	// Append inserts a message and bumps the session's message count in one
	// transaction. Ordering is by created_at, append-only.
	Append(ctx context.Context, msg *model.Message) (*model.Message, error)

	// ListRecent returns up to limit newest messages of the conversation in
	// chronological order. When excludeSummarized is true, compacted
	// messages are skipped.
	ListRecent(ctx context.Context, conversationID string, limit int, excludeSummarized bool) ([]model.Message, error)

	// ListUnsummarized returns every non-summarized message of the
	// conversation in chronological order.
	ListUnsummarized(ctx context.Context, conversationID string) ([]model.Message, error)
}
