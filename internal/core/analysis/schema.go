package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/markdave123-py/AgroIntelX/internal/models"
)

// PredictRequest is the body accepted by the prediction endpoint. The first six
// fields are the ones the numeric model is trained on.
type PredictRequest struct {
	DistrictName  string   `json:"District_Name"`
	Nitrogen      float64  `json:"Nitrogen"`
	Phosphorus    float64  `json:"Phosphorus"`
	Potassium     float64  `json:"Potassium"`
	PH            float64  `json:"pH"`
	Rainfall      float64  `json:"Rainfall"`
	State         *string  `json:"State,omitempty"`
	OrganicCarbon *float64 `json:"Organic_Carbon,omitempty"`
	Sulphur       *float64 `json:"Sulphur,omitempty"`
	Zinc          *float64 `json:"Zinc,omitempty"`
	Iron          *float64 `json:"Iron,omitempty"`
}

// NewPredictRequest builds a request from a canonical snapshot. It returns the
// names of the model fields that are missing, in which case the request is unusable.
func NewPredictRequest(s *models.NutrientSnapshot) (PredictRequest, []string) {
	if s == nil {
		return PredictRequest{}, []string{"District_Name", "Nitrogen", "Phosphorus", "Potassium", "pH", "Rainfall"}
	}

	var missing []string
	num := func(name string, v *float64) float64 {
		if v == nil {
			missing = append(missing, name)
			return 0
		}
		return *v
	}

	req := PredictRequest{
		Nitrogen:      num("Nitrogen", s.Nitrogen),
		Phosphorus:    num("Phosphorus", s.Phosphorus),
		Potassium:     num("Potassium", s.Potassium),
		PH:            num("pH", s.PH),
		Rainfall:      num("Rainfall", s.Rainfall),
		State:         s.State,
		OrganicCarbon: s.OrganicCarbon,
		Sulphur:       s.Sulphur,
		Zinc:          s.Zinc,
		Iron:          s.Iron,
	}
	if s.District == nil || strings.TrimSpace(*s.District) == "" {
		missing = append([]string{"District_Name"}, missing...)
	} else {
		req.DistrictName = *s.District
	}
	return req, missing
}

// ReportResult is the parsed response of the document-analysis endpoint.
type ReportResult struct {
	// Extracted is the raw extracted-data bag; nil when the backend returned none.
	Extracted map[string]json.RawMessage
	Analysis  models.SoilAnalysis
}

// analysisBag is the AI-analysis object shared by both endpoints.
type analysisBag struct {
	Error                 json.RawMessage                `json:"error"`
	SoilHealthAnalysis    string                         `json:"soil_health_analysis"`
	SoilHealthScore       json.RawMessage                `json:"soil_health_score"`
	SoilHealthGrade       string                         `json:"soil_health_grade"`
	RecommendedCrop       string                         `json:"recommended_crop"`
	RecommendedFertilizer string                         `json:"recommended_fertilizer"`
	TopCrops              []models.CropProbability       `json:"top_crops"`
	TopFertilizers        []models.FertilizerProbability `json:"top_fertilizers"`
}

type reportEnvelope struct {
	Error          json.RawMessage            `json:"error"`
	ExtractedData  map[string]json.RawMessage `json:"extracted_data"`
	AIAnalysisData *analysisBag               `json:"ai_analysis_data"`
}

// toModel validates the bag and converts it to the persisted shape.
func (b *analysisBag) toModel() (*models.SoilAnalysis, error) {
	if msg := flexibleString(b.Error); msg != "" {
		return nil, fmt.Errorf("analysis returned error: %s", msg)
	}
	if b.RecommendedCrop == "" || b.SoilHealthGrade == "" {
		return nil, fmt.Errorf("analysis response missing recommended_crop or soil_health_grade")
	}

	out := &models.SoilAnalysis{
		SoilHealthAnalysis:     b.SoilHealthAnalysis,
		SoilHealthScore:        flexibleString(b.SoilHealthScore),
		SoilHealthGrade:        b.SoilHealthGrade,
		RecommendedCrop:        b.RecommendedCrop,
		RecommendedFertilizers: b.RecommendedFertilizer,
		TopCrops:               b.TopCrops,
		TopFertilizers:         b.TopFertilizers,
	}
	if out.TopCrops == nil {
		out.TopCrops = []models.CropProbability{}
	}
	if out.TopFertilizers == nil {
		out.TopFertilizers = []models.FertilizerProbability{}
	}
	return out, nil
}

// flexibleString renders a JSON scalar as text; models return the health score
// as either "72.50" or 72.5.
func flexibleString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return string(raw)
}
