package ai

import (
	"context"

	"docchat/internal/model"
)

// Package ai wraps the opaque model backend. The rest of the system treats
// embedding, completion and summarization as plain functions that may fail;
// backend timeouts and transport errors are not distinguished from other
// failures and are retryable by the caller.

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer produces an answer for a user query given retrieved passages and
// conversation context.
type Completer interface {
	Complete(ctx context.Context, prompt string, contextPassages []string) (string, error)
}

// Summarizer condenses a span of conversation messages into one summary.
type Summarizer interface {
	Summarize(ctx context.Context, messages []model.Message) (string, error)
}
