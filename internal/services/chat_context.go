package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/core"
	"github.com/markdave123-py/AgroIntelX/internal/models"
)

const (
	historyLimit      = 10
	groundingLimit    = 3
	noReportsText     = "No soil reports available."
	notAvailable      = "N/A"
	assistantPreamble = "You are AgroIntelX AI Assistant, an agriculture expert for Indian farmers."
	answerGuidance    = "Respond with clear, actionable agricultural advice.\n" +
		"Avoid generic answers. Use the user's soil data. Format the response with headings and lists where helpful."
)

// ContextAssembler builds the prompt handed to the assistant model from the
// session transcript and the user's soil reports.
type ContextAssembler struct {
	db core.DbClient
}

func NewContextAssembler(db core.DbClient) *ContextAssembler {
	return &ContextAssembler{db: db}
}

// Build returns the composed prompt. reportID, when set, pins grounding to that
// report; otherwise the newest reports are used.
func (a *ContextAssembler) Build(ctx context.Context, ownerID, sessionID, reportID, question string) (string, error) {
	history, err := a.db.ListRecentChatMessages(ctx, sessionID, historyLimit)
	if err != nil {
		return "", fmt.Errorf("load chat history: %w", err)
	}

	reports, err := a.groundingReports(ctx, ownerID, reportID)
	if err != nil {
		return "", err
	}

	return composePrompt(reports, history, question), nil
}

func (a *ContextAssembler) groundingReports(ctx context.Context, ownerID, reportID string) ([]models.SoilReport, error) {
	if reportID == "" {
		reports, err := a.db.ListSoilReportsByUser(ctx, ownerID, groundingLimit)
		if err != nil {
			return nil, fmt.Errorf("load grounding reports: %w", err)
		}
		return reports, nil
	}

	report, err := a.db.GetSoilReportForUser(ctx, reportID, ownerID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load grounding report: %w", err)
	}
	return []models.SoilReport{*report}, nil
}

func composePrompt(reports []models.SoilReport, history []models.ChatMessage, question string) string {
	var b strings.Builder

	b.WriteString(assistantPreamble)
	b.WriteString("\n\nUser Soil Reports:\n")
	if len(reports) == 0 {
		b.WriteString(noReportsText)
		b.WriteString("\n")
	}
	for i, r := range reports {
		writeReportSummary(&b, i+1, &r)
	}

	b.WriteString("\nConversation History:\n")
	for _, m := range history {
		b.WriteString(roleLabel(m.Sender))
		b.WriteString(": ")
		b.WriteString(m.Message)
		b.WriteString("\n")
	}

	b.WriteString("\nUser Question:\n")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(answerGuidance)
	b.WriteString("\n")

	return b.String()
}

func writeReportSummary(b *strings.Builder, n int, r *models.SoilReport) {
	var in models.NutrientSnapshot
	if r.ExtractedInputData != nil {
		in = *r.ExtractedInputData
	}
	var out models.SoilAnalysis
	if r.Analysis != nil {
		out = *r.Analysis
	}

	fmt.Fprintf(b, "Report %d:\n", n)
	fmt.Fprintf(b, "District: %s\n", textOrNA(in.District))
	fmt.Fprintf(b, "pH: %s\n", numberOrNA(in.PH))
	fmt.Fprintf(b, "Nitrogen: %s\n", numberOrNA(in.Nitrogen))
	fmt.Fprintf(b, "Phosphorus: %s\n", numberOrNA(in.Phosphorus))
	fmt.Fprintf(b, "Potassium: %s\n", numberOrNA(in.Potassium))
	fmt.Fprintf(b, "Recommended Crop: %s\n", stringOrNA(out.RecommendedCrop))
	fmt.Fprintf(b, "Recommended Fertilizers: %s\n", stringOrNA(out.RecommendedFertilizers))
	fmt.Fprintf(b, "Soil Health: %s\n", stringOrNA(out.SoilHealthGrade))
}

func roleLabel(sender string) string {
	if sender == models.SenderUser {
		return "User"
	}
	return "Assistant"
}

func textOrNA(v *string) string {
	if v == nil {
		return notAvailable
	}
	return stringOrNA(*v)
}

func stringOrNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return notAvailable
	}
	return v
}

func numberOrNA(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
