package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/core"
	"github.com/markdave123-py/AgroIntelX/internal/core/analysis"
	"github.com/markdave123-py/AgroIntelX/internal/models"
)

// Archiver stores the uploaded document once the analysis has succeeded.
type Archiver interface {
	Archive(ctx context.Context, userID, localPath, fileName string) (*ArchivedDocument, error)
	Discard(ctx context.Context, key string)
}

// AnalyzeInput is one soil analysis submission.
type AnalyzeInput struct {
	UserID string
	Source string
	// FilePath and FileName describe the uploaded PDF for the pdf source.
	FilePath string
	FileName string
	// Nutrients is the raw JSON object submitted for the manual source.
	Nutrients string
}

type SoilService struct {
	db       core.DbClient
	gateway  core.AnalysisGateway
	archiver Archiver
	logger   *zap.Logger
	now      func() time.Time
}

func NewSoilService(db core.DbClient, gateway core.AnalysisGateway, archiver Archiver, logger *zap.Logger) *SoilService {
	return &SoilService{
		db:       db,
		gateway:  gateway,
		archiver: archiver,
		logger:   logger.Named("soil"),
		now:      time.Now,
	}
}

// Analyze runs a submission through normalization, the analysis backend and
// persistence, and returns the stored report.
func (s *SoilService) Analyze(ctx context.Context, in AnalyzeInput) (*models.SoilReport, error) {
	if in.FilePath != "" {
		defer func() {
			if err := os.Remove(in.FilePath); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("Failed to remove temporary upload", zap.String("path", in.FilePath), zap.Error(err))
			}
		}()
	}

	source := models.SourceKind(in.Source)
	if !source.Valid() {
		return nil, apperrors.NewValidationError("Invalid or missing source (pdf/manual)")
	}

	switch source {
	case models.SourcePDF:
		return s.analyzeDocument(ctx, in)
	default:
		return s.analyzeManual(ctx, in)
	}
}

func (s *SoilService) analyzeDocument(ctx context.Context, in AnalyzeInput) (*models.SoilReport, error) {
	if in.FilePath == "" {
		return nil, apperrors.NewValidationError("PDF file is required")
	}

	result, err := s.gateway.AnalyzeReport(ctx, in.FilePath, in.FileName)
	if err != nil {
		return nil, fmt.Errorf("analyze soil report: %w", err)
	}

	archived, err := s.archiver.Archive(ctx, in.UserID, in.FilePath, in.FileName)
	if err != nil {
		return nil, err
	}

	snapshot := NormalizeNutrients(result.Extracted)
	report, err := s.CreateReport(ctx, in.UserID, models.SourcePDF, snapshot, &archived.URL, &result.Analysis)
	if err != nil {
		s.archiver.Discard(context.WithoutCancel(ctx), archived.Key)
		return nil, err
	}
	return report, nil
}

func (s *SoilService) analyzeManual(ctx context.Context, in AnalyzeInput) (*models.SoilReport, error) {
	if strings.TrimSpace(in.Nutrients) == "" {
		return nil, apperrors.NewValidationError("Nutrients data required")
	}

	var bag map[string]json.RawMessage
	if err := json.Unmarshal([]byte(in.Nutrients), &bag); err != nil || bag == nil {
		return nil, apperrors.NewValidationError("Nutrients must be a JSON object")
	}

	snapshot := NormalizeNutrients(bag)
	req, missing := analysis.NewPredictRequest(snapshot)
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("Missing nutrient fields: %s", strings.Join(missing, ", "))
	}

	result, err := s.gateway.Predict(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("predict soil analysis: %w", err)
	}

	return s.CreateReport(ctx, in.UserID, models.SourceManual, snapshot, nil, result)
}

// CreateReport validates and writes one immutable report.
func (s *SoilService) CreateReport(
	ctx context.Context,
	ownerID string,
	source models.SourceKind,
	snapshot *models.NutrientSnapshot,
	pdfURL *string,
	result *models.SoilAnalysis,
) (*models.SoilReport, error) {
	if !source.Valid() {
		return nil, apperrors.NewValidationError("Invalid or missing source (pdf/manual)")
	}
	if source == models.SourcePDF && (pdfURL == nil || *pdfURL == "") {
		return nil, apperrors.NewValidationError("PDF report requires an archived document URL")
	}
	if source == models.SourceManual {
		pdfURL = nil
	}

	report := &models.SoilReport{
		ID:                 uuid.NewString(),
		UserID:             ownerID,
		Source:             source,
		PdfURL:             pdfURL,
		ExtractedInputData: snapshot,
		Analysis:           result,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.db.CreateSoilReport(ctx, report); err != nil {
		return nil, fmt.Errorf("create soil report: %w: %w", apperrors.ErrPersistence, err)
	}

	s.logger.Info("Soil report created",
		zap.String("report_id", report.ID),
		zap.String("user_id", ownerID),
		zap.String("source", string(source)))
	return report, nil
}

func (s *SoilService) ListReports(ctx context.Context, ownerID string) ([]models.SoilReport, error) {
	reports, err := s.db.ListSoilReportsByUser(ctx, ownerID, 0)
	if err != nil {
		return nil, fmt.Errorf("list soil reports: %w", err)
	}
	return reports, nil
}

func (s *SoilService) GetReport(ctx context.Context, ownerID, reportID string) (*models.SoilReport, error) {
	report, err := s.db.GetSoilReportForUser(ctx, reportID, ownerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrReportNotFound
		}
		return nil, fmt.Errorf("get soil report: %w", err)
	}
	return report, nil
}
