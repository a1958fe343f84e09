package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/core/analysis"
	"github.com/markdave123-py/AgroIntelX/internal/models"
	"github.com/markdave123-py/AgroIntelX/internal/testhelpers"
)

type soilFixture struct {
	db      *testhelpers.MemoryDB
	gateway *fakeGateway
	store   *fakeObjectStore
	svc     *SoilService
}

func newSoilFixture() *soilFixture {
	db := testhelpers.NewMemoryDB()
	gw := &fakeGateway{
		report: &analysis.ReportResult{
			Extracted: map[string]json.RawMessage{
				"District_Name": json.RawMessage(`"Kolhapur"`),
				"Nitrogen":      json.RawMessage(`"52"`),
				"pH":            json.RawMessage(`7.2`),
			},
			Analysis: *sampleAnalysis(),
		},
		predict: sampleAnalysis(),
	}
	store := newFakeObjectStore()
	archiver := NewArchiveService(store, "soil-bucket", zap.NewNop())
	return &soilFixture{
		db:      db,
		gateway: gw,
		store:   store,
		svc:     NewSoilService(db, gw, archiver, zap.NewNop()),
	}
}

func tempUpload(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload-123.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
	return path
}

func TestSoilService_ManualScenario(t *testing.T) {
	f := newSoilFixture()

	report, err := f.svc.Analyze(context.Background(), AnalyzeInput{
		UserID:    "user-1",
		Source:    "manual",
		Nutrients: `{"District_Name":"Nashik","Nitrogen":45,"Phosphorus":35,"Potassium":150,"pH":6.8,"Rainfall":120}`,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SourceManual, report.Source)
	assert.Nil(t, report.PdfURL)
	require.NotNil(t, report.ExtractedInputData)
	assert.Equal(t, 45.0, *report.ExtractedInputData.Nitrogen)
	assert.Equal(t, "Nashik", *report.ExtractedInputData.District)
	require.NotNil(t, report.Analysis)
	assert.Equal(t, "Sugarcane", report.Analysis.RecommendedCrop)

	assert.Zero(t, f.gateway.reportHits, "manual path must not call the extraction endpoint")
	require.Len(t, f.gateway.predicted, 1)
	assert.Equal(t, "Nashik", f.gateway.predicted[0].DistrictName)
	assert.Equal(t, 6.8, f.gateway.predicted[0].PH)

	stored, err := f.svc.ListReports(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, report.ID, stored[0].ID)
}

func TestSoilService_PDFStoresURLAndRemovesTempFile(t *testing.T) {
	f := newSoilFixture()
	path := tempUpload(t)

	report, err := f.svc.Analyze(context.Background(), AnalyzeInput{
		UserID:   "user-1",
		Source:   "pdf",
		FilePath: path,
		FileName: "kolhapur soil.pdf",
	})
	require.NoError(t, err)

	require.NotNil(t, report.PdfURL)
	assert.Contains(t, *report.PdfURL, "users/user-1/soil-reports/")
	assert.Contains(t, *report.PdfURL, "kolhapur_soil.pdf")
	assert.Equal(t, "Kolhapur", *report.ExtractedInputData.District)
	assert.Equal(t, 52.0, *report.ExtractedInputData.Nitrogen)
	assert.Len(t, f.store.uploaded, 1)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSoilService_PDFRemovesTempFileOnFailure(t *testing.T) {
	t.Run("analysis fails", func(t *testing.T) {
		f := newSoilFixture()
		f.gateway.err = &apperrors.UpstreamError{Kind: apperrors.ErrUpstreamUnavailable, Service: "report-analysis"}
		path := tempUpload(t)

		_, err := f.svc.Analyze(context.Background(), AnalyzeInput{UserID: "u", Source: "pdf", FilePath: path, FileName: "r.pdf"})
		assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
		assert.Empty(t, f.store.uploaded)
	})

	t.Run("archive fails", func(t *testing.T) {
		f := newSoilFixture()
		f.store.err = errBoom
		path := tempUpload(t)

		_, err := f.svc.Analyze(context.Background(), AnalyzeInput{UserID: "u", Source: "pdf", FilePath: path, FileName: "r.pdf"})
		assert.ErrorIs(t, err, errBoom)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))

		reports, _ := f.svc.ListReports(context.Background(), "u")
		assert.Empty(t, reports)
	})

	t.Run("persistence fails", func(t *testing.T) {
		f := newSoilFixture()
		f.db.Fail = errBoom
		path := tempUpload(t)

		_, err := f.svc.Analyze(context.Background(), AnalyzeInput{UserID: "u", Source: "pdf", FilePath: path, FileName: "r.pdf"})
		assert.ErrorIs(t, err, apperrors.ErrPersistence)
		require.Len(t, f.store.deleted, 1, "archived object should be discarded")
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestSoilService_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   AnalyzeInput
		want string
	}{
		{name: "missing source", in: AnalyzeInput{}, want: "Invalid or missing source (pdf/manual)"},
		{name: "unknown source", in: AnalyzeInput{Source: "csv"}, want: "Invalid or missing source (pdf/manual)"},
		{name: "pdf without file", in: AnalyzeInput{Source: "pdf"}, want: "PDF file is required"},
		{name: "manual without nutrients", in: AnalyzeInput{Source: "manual"}, want: "Nutrients data required"},
		{name: "manual with malformed nutrients", in: AnalyzeInput{Source: "manual", Nutrients: "{nope"}, want: "Nutrients must be a JSON object"},
		{name: "manual with array", in: AnalyzeInput{Source: "manual", Nutrients: "[1,2]"}, want: "Nutrients must be a JSON object"},
		{
			name: "manual missing model fields",
			in:   AnalyzeInput{Source: "manual", Nutrients: `{"district":"Pune","nitrogen":40}`},
			want: "Missing nutrient fields: Phosphorus, Potassium, pH, Rainfall",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSoilFixture()
			_, err := f.svc.Analyze(context.Background(), tt.in)
			require.Error(t, err)
			require.True(t, apperrors.IsValidation(err))
			assert.EqualError(t, err, tt.want)
			assert.Empty(t, f.gateway.predicted)
			assert.Zero(t, f.gateway.reportHits)
		})
	}
}

func TestSoilService_CreateReportRequiresURLForPDF(t *testing.T) {
	f := newSoilFixture()

	_, err := f.svc.CreateReport(context.Background(), "u", models.SourcePDF, nil, nil, sampleAnalysis())
	assert.True(t, apperrors.IsValidation(err))

	empty := ""
	_, err = f.svc.CreateReport(context.Background(), "u", models.SourcePDF, nil, &empty, sampleAnalysis())
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.CreateReport(context.Background(), "u", models.SourceKind("fax"), nil, nil, sampleAnalysis())
	assert.True(t, apperrors.IsValidation(err))

	report, err := f.svc.CreateReport(context.Background(), "u", models.SourceManual, nil, nil, sampleAnalysis())
	require.NoError(t, err)
	assert.Nil(t, report.ExtractedInputData)
}

func TestSoilService_OwnershipIsolation(t *testing.T) {
	f := newSoilFixture()
	ctx := context.Background()

	report, err := f.svc.CreateReport(ctx, "alice", models.SourceManual, nil, nil, sampleAnalysis())
	require.NoError(t, err)

	_, err = f.svc.GetReport(ctx, "bob", report.ID)
	assert.ErrorIs(t, err, apperrors.ErrReportNotFound)

	bobs, err := f.svc.ListReports(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bobs)

	got, err := f.svc.GetReport(ctx, "alice", report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, got.ID)
}

func TestSoilService_ListNewestFirst(t *testing.T) {
	f := newSoilFixture()
	ctx := context.Background()

	first, _ := f.svc.CreateReport(ctx, "u", models.SourceManual, nil, nil, sampleAnalysis())
	second, _ := f.svc.CreateReport(ctx, "u", models.SourceManual, nil, nil, sampleAnalysis())

	reports, err := f.svc.ListReports(ctx, "u")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, second.ID, reports[0].ID)
	assert.Equal(t, first.ID, reports[1].ID)
}
