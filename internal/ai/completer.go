package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/config"
)

const (
	completionTimeout = 20 * time.Second
	maxReplyTokens    = 300
)

const systemPrompt = "Ты помощник службы поддержки игрового сервера. " +
	"Отвечай кратко и вежливо на русском языке. " +
	"Если не уверен в ответе, попроси подождать модератора."

// Completer produces an AI-drafted reply when no deterministic rule matched.
// It is strictly a fallback path and may be disabled entirely.
type Completer struct {
	client  openai.Client
	model   string
	enabled bool
	logger  *zap.Logger
}

// NewCompleter builds a completer from config. A disabled or keyless config
// yields an inert completer whose Complete always reports no reply.
func NewCompleter(cfg config.OpenAIConfig, logger *zap.Logger) *Completer {
	c := &Completer{model: cfg.Model, logger: logger}
	if !cfg.Enabled || cfg.APIKey == "" {
		return c
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	c.client = openai.NewClient(opts...)
	c.enabled = true
	return c
}

// Enabled reports whether the fallback path is active.
func (c *Completer) Enabled() bool {
	return c.enabled
}

// Complete drafts a reply for the user message. An empty string with nil
// error means the model declined or the completer is disabled.
func (c *Completer) Complete(ctx context.Context, userMessage string) (string, error) {
	if !c.enabled {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
		MaxCompletionTokens: openai.Int(maxReplyTokens),
	})
	if err != nil {
		return "", fmt.Errorf("ai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("ai completion",
		zap.String("model", c.model),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens))
	return reply, nil
}
