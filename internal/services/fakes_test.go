package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/markdave123-py/AgroIntelX/internal/core/analysis"
	"github.com/markdave123-py/AgroIntelX/internal/models"
)

type fakeGateway struct {
	report     *analysis.ReportResult
	predict    *models.SoilAnalysis
	err        error
	reportHits int
	predicted  []analysis.PredictRequest
}

func (f *fakeGateway) AnalyzeReport(_ context.Context, _, _ string) (*analysis.ReportResult, error) {
	f.reportHits++
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeGateway) Predict(_ context.Context, req analysis.PredictRequest) (*models.SoilAnalysis, error) {
	f.predicted = append(f.predicted, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.predict, nil
}

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	systems []string
}

func (f *fakeLLM) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systems = append(f.systems, systemPrompt)
	f.prompts = append(f.prompts, userPrompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeObjectStore struct {
	uploaded map[string][]byte
	deleted  []string
	err      error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploaded: map[string][]byte{}}
}

func (f *fakeObjectStore) UploadFile(_ context.Context, bucket, key string, data io.Reader, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.uploaded[key] = b
	return "https://" + bucket + ".s3.test/" + key, nil
}

func (f *fakeObjectStore) DeleteFile(_ context.Context, _, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

var errBoom = errors.New("boom")

func sampleAnalysis() *models.SoilAnalysis {
	return &models.SoilAnalysis{
		SoilHealthAnalysis:     "Nitrogen: Moderate",
		SoilHealthScore:        "72.5",
		SoilHealthGrade:        "Good",
		RecommendedCrop:        "Sugarcane",
		RecommendedFertilizers: "Urea",
		TopCrops:               []models.CropProbability{{Crop: "Sugarcane", Probability: 61.2}},
		TopFertilizers:         []models.FertilizerProbability{{Fertilizer: "Urea", Probability: 55}},
	}
}
