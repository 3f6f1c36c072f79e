package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	aiMocks "docchat/internal/ai/mocks"
	"docchat/internal/config"
	"docchat/internal/memory"
	"docchat/internal/model"
	"docchat/internal/repository"
	repoMocks "docchat/internal/repository/mocks"
	"docchat/internal/retrieval"
)

type chatFixture struct {
	svc        ChatService
	convs      *repoMocks.MockConversationRepository
	msgs       *repoMocks.MockMessageRepository
	docs       *repoMocks.MockDocumentRepository
	segments   *repoMocks.MockSegmentRepository
	embedder   *aiMocks.MockEmbedder
	completer  *aiMocks.MockCompleter
	summarizer *aiMocks.MockSummarizer
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		convs:      new(repoMocks.MockConversationRepository),
		msgs:       new(repoMocks.MockMessageRepository),
		docs:       new(repoMocks.MockDocumentRepository),
		segments:   new(repoMocks.MockSegmentRepository),
		embedder:   new(aiMocks.MockEmbedder),
		completer:  new(aiMocks.MockCompleter),
		summarizer: new(aiMocks.MockSummarizer),
	}
	mem := memory.NewManager(f.convs, f.msgs, f.summarizer,
		config.MemoryConfig{SummarizeThreshold: 15, RecentWindow: 8, HistoryCap: 20})
	f.svc = NewChatService(f.convs, f.msgs, f.docs, retrieval.NewEngine(f.segments), mem,
		f.embedder, f.completer, 2)
	return f
}

func conversation(messageCount int, docIDs ...string) *model.ConversationSession {
	return &model.ConversationSession{
		ID:           "conv-1",
		OwnerID:      "owner-1",
		Title:        "budget review",
		DocumentIDs:  docIDs,
		MessageCount: messageCount,
	}
}

// expectAppends sets up one Append expectation per role and captures the
// messages the service actually built.
func expectAppends(f *chatFixture, userContent, replyContent string) (user, reply **model.Message) {
	user, reply = new(*model.Message), new(*model.Message)
	f.msgs.On("Append", mock.Anything, mock.MatchedBy(func(m *model.Message) bool {
		return m.Role == model.RoleUser
	})).Run(func(args mock.Arguments) {
		*user = args.Get(1).(*model.Message)
	}).Return(&model.Message{ID: "m-user", ConversationID: "conv-1", Role: model.RoleUser, Content: userContent}, nil)

	f.msgs.On("Append", mock.Anything, mock.MatchedBy(func(m *model.Message) bool {
		return m.Role == model.RoleAssistant
	})).Run(func(args mock.Arguments) {
		*reply = args.Get(1).(*model.Message)
	}).Return(&model.Message{ID: "m-reply", ConversationID: "conv-1", Role: model.RoleAssistant, Content: replyContent}, nil)
	return user, reply
}

func TestChatService_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("grounded turn persists both messages with a context snapshot", func(t *testing.T) {
		f := newChatFixture()
		conv := conversation(2, "doc-1")

		f.convs.On("FindByID", ctx, "conv-1", "owner-1").Return(conv, nil)
		f.embedder.On("Embed", ctx, "what is the total?").Return([]float32{1, 0}, nil)
		f.segments.On("ListByDocuments", ctx, []string{"doc-1"}, "owner-1").Return([]model.Segment{
			{ID: "s-1", DocumentID: "doc-1", Ordinal: 0, Content: "totals are in section 3", Embedding: pgvector.NewVector([]float32{1, 0})},
			{ID: "s-2", DocumentID: "doc-1", Ordinal: 1, Content: "unrelated preamble", Embedding: pgvector.NewVector([]float32{0, 1})},
		}, nil)
		f.msgs.On("ListRecent", ctx, "conv-1", 20, false).Return([]model.Message{
			{Role: model.RoleUser, Content: "hello"},
			{Role: model.RoleAssistant, Content: "hi"},
		}, nil)
		f.completer.On("Complete", ctx, mock.MatchedBy(func(prompt string) bool {
			return strings.Contains(prompt, "user: hello") &&
				strings.HasSuffix(prompt, "user: what is the total?")
		}), []string{"totals are in section 3", "unrelated preamble"}).
			Return("the total is 42", nil)
		appendedUser, appendedReply := expectAppends(f, "what is the total?", "the total is 42")

		turn, err := f.svc.SendMessage(ctx, "owner-1", "conv-1", "what is the total?")
		require.NoError(t, err)

		assert.Equal(t, model.RoleUser, turn.UserMessage.Role)
		assert.Equal(t, "what is the total?", turn.UserMessage.Content)
		assert.Equal(t, model.RoleAssistant, turn.Reply.Role)
		assert.Equal(t, "the total is 42", turn.Reply.Content)

		// The user message carries the retrieval snapshot, the reply does not.
		require.NotNil(t, *appendedUser)
		require.NotNil(t, (*appendedUser).Context)
		assert.Equal(t, "doc-1", (*appendedUser).Context.Chunks[0].DocumentID)
		assert.Equal(t, "totals are in section 3", (*appendedUser).Context.Chunks[0].Content)
		require.NotNil(t, *appendedReply)
		assert.Nil(t, (*appendedReply).Context)

		require.Len(t, turn.Sources, 2)
		assert.Equal(t, "totals are in section 3", turn.Sources[0].Content)
		assert.Equal(t, 4, conv.MessageCount)

		f.msgs.AssertNumberOfCalls(t, "Append", 2)
	})

	t.Run("conversation without documents skips retrieval", func(t *testing.T) {
		f := newChatFixture()
		f.convs.On("FindByID", ctx, "conv-1", "owner-1").Return(conversation(0), nil)
		f.msgs.On("ListRecent", ctx, "conv-1", 20, false).Return([]model.Message{}, nil)
		f.completer.On("Complete", ctx, "user: hi there", []string(nil)).Return("hello", nil)
		appendedUser, _ := expectAppends(f, "hi there", "hello")

		turn, err := f.svc.SendMessage(ctx, "owner-1", "conv-1", "hi there")
		require.NoError(t, err)
		assert.Empty(t, turn.Sources)
		assert.Nil(t, (*appendedUser).Context)
		f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	})

	t.Run("retrieval failure degrades to memory-only context", func(t *testing.T) {
		f := newChatFixture()
		f.convs.On("FindByID", ctx, "conv-1", "owner-1").Return(conversation(0, "doc-1"), nil)
		f.embedder.On("Embed", ctx, "question").Return(nil, errors.New("backend down"))
		f.msgs.On("ListRecent", ctx, "conv-1", 20, false).Return([]model.Message{}, nil)
		f.completer.On("Complete", ctx, "user: question", []string(nil)).Return("answer", nil)
		expectAppends(f, "question", "answer")

		turn, err := f.svc.SendMessage(ctx, "owner-1", "conv-1", "question")
		require.NoError(t, err)
		assert.Empty(t, turn.Sources)
	})

	t.Run("generation failure persists nothing", func(t *testing.T) {
		f := newChatFixture()
		f.convs.On("FindByID", ctx, "conv-1", "owner-1").Return(conversation(0), nil)
		f.msgs.On("ListRecent", ctx, "conv-1", 20, false).Return([]model.Message{}, nil)
		f.completer.On("Complete", ctx, mock.Anything, mock.Anything).
			Return("", errors.New("backend down"))

		_, err := f.svc.SendMessage(ctx, "owner-1", "conv-1", "question")
		assert.Error(t, err)
		f.msgs.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("turn that crosses the threshold triggers compaction", func(t *testing.T) {
		f := newChatFixture()
		conv := conversation(13)
		included := []model.Message{{ID: "m-1"}, {ID: "m-2"}}

		f.convs.On("FindByID", ctx, "conv-1", "owner-1").Return(conv, nil)
		f.msgs.On("ListRecent", ctx, "conv-1", 20, false).Return([]model.Message{}, nil)
		f.completer.On("Complete", ctx, mock.Anything, mock.Anything).Return("answer", nil)
		expectAppends(f, "question", "answer")

		f.msgs.On("ListUnsummarized", ctx, "conv-1").Return(included, nil)
		f.summarizer.On("Summarize", ctx, included).Return("condensed", nil)
		f.convs.On("ApplySummary", ctx, "conv-1", "condensed", mock.AnythingOfType("time.Time")).Return(nil)

		_, err := f.svc.SendMessage(ctx, "owner-1", "conv-1", "question")
		require.NoError(t, err)
		assert.True(t, conv.Summarized)
		f.convs.AssertExpectations(t)
	})

	t.Run("compaction failure does not fail the turn", func(t *testing.T) {
		f := newChatFixture()
		conv := conversation(13)

		f.convs.On("FindByID", ctx, "conv-1", "owner-1").Return(conv, nil)
		f.msgs.On("ListRecent", ctx, "conv-1", 20, false).Return([]model.Message{}, nil)
		f.completer.On("Complete", ctx, mock.Anything, mock.Anything).Return("answer", nil)
		expectAppends(f, "question", "answer")

		f.msgs.On("ListUnsummarized", ctx, "conv-1").Return(nil, errors.New("db fail"))

		turn, err := f.svc.SendMessage(ctx, "owner-1", "conv-1", "question")
		require.NoError(t, err)
		assert.Equal(t, "answer", turn.Reply.Content)
		assert.False(t, conv.Summarized)
	})

	t.Run("empty content", func(t *testing.T) {
		f := newChatFixture()
		_, err := f.svc.SendMessage(ctx, "owner-1", "conv-1", "   ")
		assert.ErrorIs(t, err, ErrEmptyMessage)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		f := newChatFixture()
		f.convs.On("FindByID", ctx, "conv-404", "owner-1").Return(nil, sql.ErrNoRows)
		_, err := f.svc.SendMessage(ctx, "owner-1", "conv-404", "question")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestChatService_CreateConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path with documents", func(t *testing.T) {
		f := newChatFixture()
		f.docs.On("FindByID", ctx, "doc-1", "owner-1").Return(&model.Document{ID: "doc-1"}, nil)
		f.convs.On("Create", ctx, mock.MatchedBy(func(conv *model.ConversationSession) bool {
			return conv.OwnerID == "owner-1" && conv.Title == "budget review" &&
				len(conv.DocumentIDs) == 1 && conv.ID != ""
		})).Return(&model.ConversationSession{ID: "conv-1"}, nil)

		conv, err := f.svc.CreateConversation(ctx, "owner-1", "budget review", []string{"doc-1"})
		require.NoError(t, err)
		assert.Equal(t, "conv-1", conv.ID)
		f.convs.AssertExpectations(t)
	})

	t.Run("blank title gets a default", func(t *testing.T) {
		f := newChatFixture()
		f.convs.On("Create", ctx, mock.MatchedBy(func(conv *model.ConversationSession) bool {
			return conv.Title == defaultConversationTitle
		})).Return(&model.ConversationSession{ID: "conv-1"}, nil)

		_, err := f.svc.CreateConversation(ctx, "owner-1", "  ", nil)
		require.NoError(t, err)
	})

	t.Run("foreign document is rejected", func(t *testing.T) {
		f := newChatFixture()
		f.docs.On("FindByID", ctx, "doc-2", "owner-1").Return(nil, sql.ErrNoRows)

		_, err := f.svc.CreateConversation(ctx, "owner-1", "t", []string{"doc-2"})
		assert.ErrorIs(t, err, ErrNotFound)
		f.convs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("missing owner", func(t *testing.T) {
		f := newChatFixture()
		_, err := f.svc.CreateConversation(ctx, "", "t", nil)
		assert.ErrorIs(t, err, ErrOwnerRequired)
	})
}

func TestChatService_AttachDocuments(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture()

	f.convs.On("FindByID", ctx, "conv-1", "owner-1").Return(conversation(0), nil)
	f.docs.On("FindByID", ctx, "doc-1", "owner-1").Return(&model.Document{ID: "doc-1"}, nil)
	f.convs.On("AttachDocuments", ctx, "conv-1", "owner-1", []string{"doc-1"}).Return(nil)

	conv, err := f.svc.AttachDocuments(ctx, "owner-1", "conv-1", []string{"doc-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, conv.DocumentIDs)
	f.convs.AssertExpectations(t)
}

func TestChatService_ListConversations(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture()

	f.convs.On("List", ctx, "owner-1", repository.PageQuery{Limit: 10, Offset: 0}).
		Return(&repository.PageResult[model.ConversationSession]{
			Items: []model.ConversationSession{{ID: "conv-1"}},
			Total: 1,
		}, nil)

	res, err := f.svc.ListConversations(ctx, "owner-1", -1, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestChatService_Memory(t *testing.T) {
	ctx := context.Background()

	t.Run("stats", func(t *testing.T) {
		f := newChatFixture()
		f.convs.On("FindByID", ctx, "conv-1", "owner-1").Return(conversation(5), nil)

		st, err := f.svc.MemoryStats(ctx, "owner-1", "conv-1")
		require.NoError(t, err)
		assert.Equal(t, 5, st.MessageCount)
		assert.False(t, st.IsSummarized)
	})

	t.Run("clear", func(t *testing.T) {
		f := newChatFixture()
		conv := conversation(30)
		conv.Summarized = true
		conv.Summary = "old summary"

		f.convs.On("FindByID", ctx, "conv-1", "owner-1").Return(conv, nil)
		f.convs.On("ClearMemory", ctx, "conv-1").Return(nil)

		require.NoError(t, f.svc.ClearMemory(ctx, "owner-1", "conv-1"))
		assert.False(t, conv.Summarized)
		assert.Zero(t, conv.MessageCount)
	})

	t.Run("clear on foreign conversation", func(t *testing.T) {
		f := newChatFixture()
		f.convs.On("FindByID", ctx, "conv-1", "owner-2").Return(nil, sql.ErrNoRows)
		assert.ErrorIs(t, f.svc.ClearMemory(ctx, "owner-2", "conv-1"), ErrNotFound)
	})
}
