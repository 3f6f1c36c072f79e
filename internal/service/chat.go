package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"docchat/internal/ai"
	"docchat/internal/memory"
	"docchat/internal/model"
	"docchat/internal/repository"
	"docchat/internal/retrieval"
)

var ErrEmptyMessage = errors.New("message content is empty")

const defaultConversationTitle = "New conversation"

// ConversationListResult is the service-level DTO for paginated conversations.
type ConversationListResult struct {
	Items []model.ConversationSession `json:"data"`
	Total int                         `json:"total"`
}

// ChatTurn is the outcome of one SendMessage call: both persisted messages
// plus the retrieval snapshot that grounded the reply.
type ChatTurn struct {
	UserMessage model.Message        `json:"user_message"`
	Reply       model.Message        `json:"reply"`
	Sources     []model.ContextChunk `json:"sources,omitempty"`
}

// ChatService defines the use cases for conversations and chat turns.
type ChatService interface {
	// CreateConversation starts a new conversation, optionally attached to a
	// set of the owner's documents.
	CreateConversation(ctx context.Context, ownerID, title string, documentIDs []string) (*model.ConversationSession, error)

	// GetConversation returns a conversation by ID, scoped to the owner.
	GetConversation(ctx context.Context, ownerID, id string) (*model.ConversationSession, error)

	// ListConversations returns the owner's conversations with a total count.
	ListConversations(ctx context.Context, ownerID string, limit, offset int) (*ConversationListResult, error)

	// AttachDocuments replaces the conversation's retrievable document set.
	AttachDocuments(ctx context.Context, ownerID, id string, documentIDs []string) (*model.ConversationSession, error)

	// DeleteConversation removes a conversation; messages cascade.
	DeleteConversation(ctx context.Context, ownerID, id string) error

	// SendMessage runs one chat turn: retrieve context from the attached
	// documents, build the bounded memory window, generate a reply, and
	// persist both messages. Nothing is persisted if generation fails.
	SendMessage(ctx context.Context, ownerID, conversationID, content string) (*ChatTurn, error)

	// MemoryStats reports the conversation's memory state for diagnostics.
	MemoryStats(ctx context.Context, ownerID, conversationID string) (*memory.Stats, error)

	// ClearMemory resets the conversation's summary state and message count.
	ClearMemory(ctx context.Context, ownerID, conversationID string) error
}

// chatService is a concrete implementation of ChatService.
type chatService struct {
	convs     repository.ConversationRepository
	msgs      repository.MessageRepository
	docs      repository.DocumentRepository
	engine    *retrieval.Engine
	mem       *memory.Manager
	embedder  ai.Embedder
	completer ai.Completer
	topK      int
}

// NewChatService constructs a new ChatService.
func NewChatService(convs repository.ConversationRepository, msgs repository.MessageRepository, docs repository.DocumentRepository, engine *retrieval.Engine, mem *memory.Manager, embedder ai.Embedder, completer ai.Completer, topK int) ChatService {
	if topK <= 0 {
		topK = 5
	}
	return &chatService{
		convs:     convs,
		msgs:      msgs,
		docs:      docs,
		engine:    engine,
		mem:       mem,
		embedder:  embedder,
		completer: completer,
		topK:      topK,
	}
}

func (s *chatService) CreateConversation(ctx context.Context, ownerID, title string, documentIDs []string) (*model.ConversationSession, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	if strings.TrimSpace(title) == "" {
		title = defaultConversationTitle
	}
	if err := s.verifyDocuments(ctx, ownerID, documentIDs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	conv := &model.ConversationSession{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       title,
		DocumentIDs: documentIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.convs.Create(ctx, conv)
}

func (s *chatService) GetConversation(ctx context.Context, ownerID, id string) (*model.ConversationSession, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	conv, err := s.convs.FindByID(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

func (s *chatService) ListConversations(ctx context.Context, ownerID string, limit, offset int) (*ConversationListResult, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.convs.List(ctx, ownerID, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &ConversationListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *chatService) AttachDocuments(ctx context.Context, ownerID, id string, documentIDs []string) (*model.ConversationSession, error) {
	conv, err := s.GetConversation(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := s.verifyDocuments(ctx, ownerID, documentIDs); err != nil {
		return nil, err
	}
	if err := s.convs.AttachDocuments(ctx, id, ownerID, documentIDs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	conv.DocumentIDs = documentIDs
	return conv, nil
}

func (s *chatService) DeleteConversation(ctx context.Context, ownerID, id string) error {
	if _, err := s.GetConversation(ctx, ownerID, id); err != nil {
		return err
	}
	return s.convs.Delete(ctx, id, ownerID)
}

// SendMessage runs one turn. Retrieval is best-effort: a failing embedding or
// segment scan degrades the turn to memory-only context instead of failing it.
// Generation failure persists nothing, so a failed turn leaves the
// conversation exactly as it was.
func (s *chatService) SendMessage(ctx context.Context, ownerID, conversationID, content string) (*ChatTurn, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	conv, err := s.GetConversation(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}

	snapshot := s.retrieveContext(ctx, conv, content)

	memCtx, err := s.mem.OptimizedContext(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("build conversation context: %w", err)
	}

	answer, err := s.completer.Complete(ctx, buildPrompt(memCtx, content), snapshot.Passages())
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	now := time.Now().UTC()
	userMsg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        content,
		Context:        snapshot,
		CreatedAt:      now,
	}
	if userMsg, err = s.msgs.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}
	reply := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        answer,
		CreatedAt:      now.Add(time.Millisecond),
	}
	if reply, err = s.msgs.Append(ctx, reply); err != nil {
		return nil, fmt.Errorf("append reply: %w", err)
	}
	conv.MessageCount += 2

	// Compaction rides on the turn that crossed the threshold. Its failure
	// never fails the turn; the next turn simply retries.
	if s.mem.ShouldSummarize(conv) {
		if _, err := s.mem.Optimize(ctx, conv); err != nil {
			log.Printf("conversation %s: compaction: %v", conv.ID, err)
		}
	}

	turn := &ChatTurn{UserMessage: *userMsg, Reply: *reply}
	if snapshot != nil {
		turn.Sources = snapshot.Chunks
	}
	return turn, nil
}

func (s *chatService) MemoryStats(ctx context.Context, ownerID, conversationID string) (*memory.Stats, error) {
	conv, err := s.GetConversation(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}
	st := s.mem.Stats(conv)
	return &st, nil
}

func (s *chatService) ClearMemory(ctx context.Context, ownerID, conversationID string) error {
	conv, err := s.GetConversation(ctx, ownerID, conversationID)
	if err != nil {
		return err
	}
	return s.mem.Clear(ctx, conv)
}

// retrieveContext embeds the query and ranks the conversation's segments.
// Returns nil when the conversation has no documents or retrieval degrades.
func (s *chatService) retrieveContext(ctx context.Context, conv *model.ConversationSession, query string) *model.RetrievedContext {
	if len(conv.DocumentIDs) == 0 {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("conversation %s: embed query: %v", conv.ID, err)
		return nil
	}
	scored, err := s.engine.FindSimilar(ctx, vec, s.topK, conv.DocumentIDs, conv.OwnerID)
	if err != nil {
		log.Printf("conversation %s: retrieve segments: %v", conv.ID, err)
		return nil
	}
	if len(scored) == 0 {
		return nil
	}

	chunks := make([]model.ContextChunk, 0, len(scored))
	for _, sc := range scored {
		chunks = append(chunks, model.ContextChunk{
			DocumentID: sc.Segment.DocumentID,
			Ordinal:    sc.Segment.Ordinal,
			Content:    sc.Segment.Content,
			Similarity: sc.Similarity,
		})
	}
	return &model.RetrievedContext{Chunks: chunks}
}

// buildPrompt renders the memory window and the current question as a plain
// transcript. Retrieved passages travel separately to the completion backend.
func buildPrompt(memCtx memory.Context, question string) string {
	var b strings.Builder
	if memCtx.Summary != "" {
		b.WriteString("Summary of the conversation so far:\n")
		b.WriteString(memCtx.Summary)
		b.WriteString("\n\n")
	}
	for _, msg := range memCtx.Recent {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString(string(model.RoleUser))
	b.WriteString(": ")
	b.WriteString(question)
	return b.String()
}

// verifyDocuments checks that every referenced document exists and belongs to
// the owner before it becomes retrievable in a conversation.
func (s *chatService) verifyDocuments(ctx context.Context, ownerID string, documentIDs []string) error {
	for _, docID := range documentIDs {
		if _, err := s.docs.FindByID(ctx, docID, ownerID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: document %s", ErrNotFound, docID)
			}
			return err
		}
	}
	return nil
}
