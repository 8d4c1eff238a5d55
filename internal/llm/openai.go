// Package llm wraps the hosted chat-completion API used to draft clinical notes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gpt-4o-mini"

var (
	ErrNotConfigured = errors.New("llm: api key not configured")
	ErrEmptyReply    = errors.New("llm: empty reply")
)

// Completer turns a system prompt and a user prompt into a single reply
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// chatAPI is the part of the go-openai client this package calls
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient implements Completer on the OpenAI chat-completion endpoint
type OpenAIClient struct {
	api         chatAPI
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAIClient creates a client. An empty apiKey yields ErrNotConfigured.
func NewOpenAIClient(apiKey, model string, logger *zap.Logger) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = DefaultModel
	}
	logger.Info("initializing openai client", zap.String("model", model))
	return newClient(openai.NewClient(apiKey), model, logger), nil
}

func newClient(api chatAPI, model string, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		api:         api,
		model:       model,
		temperature: 0.3,
		maxTokens:   1200,
		logger:      logger,
	}
}

// Complete sends one system+user exchange and returns the first choice
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:         c.temperature,
		MaxCompletionTokens: c.maxTokens,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("openai call failed", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("openai call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	c.logger.Debug("openai reply received",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return content, nil
}
