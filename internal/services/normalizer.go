package services

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/markdave123-py/AgroIntelX/internal/models"
)

// fieldKeys holds the two accepted spellings of a canonical field:
// the extracted-document key first, then the manual-entry key.
type fieldKeys struct {
	document string
	manual   string
}

var (
	districtKeys      = fieldKeys{"District_Name", "district"}
	stateKeys         = fieldKeys{"State", "state"}
	phKeys            = fieldKeys{"pH", "ph"}
	nitrogenKeys      = fieldKeys{"Nitrogen", "nitrogen"}
	phosphorusKeys    = fieldKeys{"Phosphorus", "phosphorus"}
	potassiumKeys     = fieldKeys{"Potassium", "potassium"}
	organicCarbonKeys = fieldKeys{"Organic_Carbon", "organicCarbon"}
	sulphurKeys       = fieldKeys{"Sulphur", "sulphur"}
	zincKeys          = fieldKeys{"Zinc", "zinc"}
	ironKeys          = fieldKeys{"Iron", "iron"}
	rainfallKeys      = fieldKeys{"Rainfall", "rainfall"}
)

// NormalizeNutrients maps a raw nutrient bag from either ingestion source onto
// the canonical snapshot. A nil bag yields a nil snapshot. Missing or
// unparseable fields resolve to nil.
func NormalizeNutrients(raw map[string]json.RawMessage) *models.NutrientSnapshot {
	if raw == nil {
		return nil
	}
	return &models.NutrientSnapshot{
		District:      lookupText(raw, districtKeys),
		State:         lookupText(raw, stateKeys),
		PH:            lookupNumber(raw, phKeys),
		Nitrogen:      lookupNumber(raw, nitrogenKeys),
		Phosphorus:    lookupNumber(raw, phosphorusKeys),
		Potassium:     lookupNumber(raw, potassiumKeys),
		OrganicCarbon: lookupNumber(raw, organicCarbonKeys),
		Sulphur:       lookupNumber(raw, sulphurKeys),
		Zinc:          lookupNumber(raw, zincKeys),
		Iron:          lookupNumber(raw, ironKeys),
		Rainfall:      lookupNumber(raw, rainfallKeys),
	}
}

// lookup returns the first present, non-null value.
func lookup(raw map[string]json.RawMessage, keys fieldKeys) (json.RawMessage, bool) {
	for _, k := range []string{keys.document, keys.manual} {
		v, ok := raw[k]
		if !ok || len(v) == 0 || string(v) == "null" {
			continue
		}
		return v, true
	}
	return nil, false
}

func lookupNumber(raw map[string]json.RawMessage, keys fieldKeys) *float64 {
	v, ok := lookup(raw, keys)
	if !ok {
		return nil
	}

	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		s = strings.TrimSpace(s)
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			return &parsed
		}
	}
	return nil
}

func lookupText(raw map[string]json.RawMessage, keys fieldKeys) *string {
	v, ok := lookup(raw, keys)
	if !ok {
		return nil
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		return &s
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		text := strconv.FormatFloat(f, 'f', -1, 64)
		return &text
	}
	return nil
}
