package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/core"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName, logger: logger.Named("gemini")}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		g.logger.Warn("Gemini generate failed", zap.String("model", g.modelName), zap.Error(err))
		if isGeminiQuota(err) {
			return "", fmt.Errorf("gemini generate: %w: %w", apperrors.ErrUpstreamQuotaExceeded, err)
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyCompletion
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errEmptyCompletion
	}
	return b.String(), nil
}

func isGeminiQuota(err error) bool {
	var ae *apierror.APIError
	if errors.As(err, &ae) {
		if ae.HTTPCode() == http.StatusTooManyRequests {
			return true
		}
		if ae.GRPCStatus().Code() == codes.ResourceExhausted {
			return true
		}
	}
	return strings.Contains(err.Error(), "RESOURCE_EXHAUSTED")
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
