package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/core"
)

var errEmptyCompletion = errors.New("model returned an empty completion")

// OpenAILLM talks to any OpenAI-compatible chat completions endpoint.
type OpenAILLM struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAILLM(apiKey, baseURL, model string, logger *zap.Logger) (*OpenAILLM, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAILLM{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.Named("openai"),
	}, nil
}

func (o *OpenAILLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userPrompt})

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		o.logger.Warn("Chat completion failed",
			zap.String("model", o.model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		if isOpenAIQuota(err) {
			return "", fmt.Errorf("openai chat completion: %w: %w", apperrors.ErrUpstreamQuotaExceeded, err)
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errEmptyCompletion
	}

	o.logger.Debug("Chat completion finished",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

func isOpenAIQuota(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	return false
}

var _ core.LLMProvider = (*OpenAILLM)(nil)
