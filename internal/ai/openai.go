package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"docchat/internal/config"
	"docchat/internal/model"
)

// Client implements Embedder, Completer and Summarizer against an
// OpenAI-compatible API. It is safe for concurrent use.
type Client struct {
	client     *openai.Client
	embedModel string
	chatModel  string
	timeout    time.Duration
}

var (
	_ Embedder   = (*Client)(nil)
	_ Completer  = (*Client)(nil)
	_ Summarizer = (*Client)(nil)
)

// NewClient creates a client for the configured backend.
func NewClient(cfg config.OpenAIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		client:     openai.NewClientWithConfig(conf),
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		timeout:    timeout,
	}, nil
}

// Embed computes an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("embedding response is empty")
	}
	return resp.Data[0].Embedding, nil
}

const answerSystemPrompt = `You are an assistant that answers questions about the user's uploaded documents.
Base your answer on the provided document passages. If the passages do not contain the answer, say so.`

// Complete generates an answer grounded in the retrieved passages. The prompt
// already carries the conversation summary and recent turns.
func (c *Client) Complete(ctx context.Context, prompt string, contextPassages []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var sb strings.Builder
	if len(contextPassages) > 0 {
		sb.WriteString("Document passages:\n")
		for i, p := range contextPassages {
			fmt.Fprintf(&sb, "[%d] %s\n", i+1, p)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(prompt)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion response is empty")
	}
	return resp.Choices[0].Message.Content, nil
}

const summarySystemPrompt = `Condense the following conversation into a short summary that preserves
the topics discussed, decisions made and any facts the assistant stated. Write plain prose.`

// Summarize condenses the given messages into a single summary.
func (c *Client) Summarize(ctx context.Context, messages []model.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create summary: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("summary response is empty")
	}
	return resp.Choices[0].Message.Content, nil
}
