package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docchat/internal/ai"
	"docchat/internal/config"
	"docchat/internal/model"
	"docchat/internal/repository"
)

// ErrSummarizationFailed wraps any summarization backend failure. Compaction
// is all-or-nothing: on failure the session and its messages are untouched.
var ErrSummarizationFailed = errors.New("summarization failed")

// estimatedMessageLen is the assumed average raw message length in
// characters, used only for the diagnostic efficiency figure.
const estimatedMessageLen = 200

// Context is the bounded prompt context for one chat turn: the summary (when
// the session is compacted), the recent messages, and a signal telling the
// caller that compaction should be attempted.
type Context struct {
	Recent       []model.Message
	Summary      string
	NeedsSummary bool
}

// Stats is a diagnostic snapshot of a session's memory state. Efficiency is
// a heuristic in [0,1] comparing summary length to the estimated raw length
// of the compacted messages; it drives no control flow.
type Stats struct {
	MessageCount int     `json:"message_count"`
	IsSummarized bool    `json:"is_summarized"`
	Efficiency   float64 `json:"efficiency"`
}

// Manager keeps per-conversation history bounded. A session is Live
// (summarized=false) until compaction flips it to Summarized; only Clear
// moves it back to Live.
type Manager struct {
	convs      repository.ConversationRepository
	msgs       repository.MessageRepository
	summarizer ai.Summarizer
	cfg        config.MemoryConfig
}

// NewManager creates a memory manager with the given thresholds.
func NewManager(convs repository.ConversationRepository, msgs repository.MessageRepository, summarizer ai.Summarizer, cfg config.MemoryConfig) *Manager {
	if cfg.SummarizeThreshold <= 0 {
		cfg.SummarizeThreshold = 15
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 8
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 20
	}
	return &Manager{convs: convs, msgs: msgs, summarizer: summarizer, cfg: cfg}
}

// ShouldSummarize reports whether the session has crossed the compaction
// threshold and has not been compacted yet.
func (m *Manager) ShouldSummarize(s *model.ConversationSession) bool {
	return !s.Summarized && s.MessageCount >= m.cfg.SummarizeThreshold
}

// OptimizedContext builds the context window for response generation.
// Summarized sessions get the summary plus the recent non-summarized
// messages; live sessions over the threshold get the recent window and a
// signal to attempt compaction; live sessions under the threshold get the
// full bounded history.
func (m *Manager) OptimizedContext(ctx context.Context, s *model.ConversationSession) (Context, error) {
	switch {
	case s.Summarized:
		recent, err := m.msgs.ListRecent(ctx, s.ID, m.cfg.RecentWindow, true)
		if err != nil {
			return Context{}, fmt.Errorf("list recent messages: %w", err)
		}
		return Context{Recent: recent, Summary: s.Summary}, nil

	case s.MessageCount >= m.cfg.SummarizeThreshold:
		recent, err := m.msgs.ListRecent(ctx, s.ID, m.cfg.RecentWindow, false)
		if err != nil {
			return Context{}, fmt.Errorf("list recent messages: %w", err)
		}
		return Context{Recent: recent, NeedsSummary: true}, nil

	default:
		recent, err := m.msgs.ListRecent(ctx, s.ID, m.cfg.HistoryCap, false)
		if err != nil {
			return Context{}, fmt.Errorf("list recent messages: %w", err)
		}
		return Context{Recent: recent}, nil
	}
}

// Optimize compacts the session's non-summarized messages into a summary.
// It is a no-op for already-summarized or under-threshold sessions. On
// success the summary text, timestamp, summarized flag and per-message flags
// are applied in one transaction; on failure nothing changes.
func (m *Manager) Optimize(ctx context.Context, s *model.ConversationSession) (string, error) {
	if s.Summarized || s.MessageCount < m.cfg.SummarizeThreshold {
		return "", nil
	}

	included, err := m.msgs.ListUnsummarized(ctx, s.ID)
	if err != nil {
		return "", fmt.Errorf("list messages for compaction: %w", err)
	}
	if len(included) == 0 {
		return "", nil
	}

	summary, err := m.summarizer.Summarize(ctx, included)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", ErrSummarizationFailed)
	}

	now := time.Now().UTC()
	if err := m.convs.ApplySummary(ctx, s.ID, summary, now); err != nil {
		return "", fmt.Errorf("apply summary: %w", err)
	}

	s.Summarized = true
	s.Summary = summary
	s.SummarizedAt = &now
	return summary, nil
}

// Clear resets memory-accounting state: summary fields, summarized flags and
// the message count. Messages themselves are kept.
func (m *Manager) Clear(ctx context.Context, s *model.ConversationSession) error {
	if err := m.convs.ClearMemory(ctx, s.ID); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	s.Summarized = false
	s.Summary = ""
	s.SummarizedAt = nil
	s.MessageCount = 0
	return nil
}

// Stats reports the session's memory state for diagnostics.
func (m *Manager) Stats(s *model.ConversationSession) Stats {
	st := Stats{
		MessageCount: s.MessageCount,
		IsSummarized: s.Summarized,
	}
	if s.Summarized && s.MessageCount > 0 {
		estimatedRaw := float64(s.MessageCount * estimatedMessageLen)
		ratio := float64(len(s.Summary)) / estimatedRaw
		efficiency := 1 - ratio
		if efficiency < 0 {
			efficiency = 0
		}
		if efficiency > 1 {
			efficiency = 1
		}
		st.Efficiency = efficiency
	}
	return st
}
