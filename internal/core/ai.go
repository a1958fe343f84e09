package core

import (
	"context"

	"github.com/markdave123-py/AgroIntelX/internal/core/analysis"
	"github.com/markdave123-py/AgroIntelX/internal/models"
)

// LLMProvider produces the assistant's reply for an assembled prompt.
// The chat service sends its assembled block as userPrompt with an empty
// systemPrompt; the block already carries the assistant's role framing.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// AnalysisGateway calls the external soil analysis backend.
type AnalysisGateway interface {
	AnalyzeReport(ctx context.Context, filePath, fileName string) (*analysis.ReportResult, error)
	Predict(ctx context.Context, req analysis.PredictRequest) (*models.SoilAnalysis, error)
}
