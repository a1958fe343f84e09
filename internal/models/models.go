package models

import (
	"time"
)

type SourceKind string

const (
	SourcePDF    SourceKind = "pdf"
	SourceManual SourceKind = "manual"
)

func (s SourceKind) Valid() bool {
	return s == SourcePDF || s == SourceManual
}

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

const RoleUser = "user"

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// UserSummary is the public view returned by the auth endpoints.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// NutrientSnapshot is the canonical nutrient record shared by both ingestion sources.
// Every field is optional.
type NutrientSnapshot struct {
	District      *string  `json:"district"`
	State         *string  `json:"state"`
	PH            *float64 `json:"ph"`
	Nitrogen      *float64 `json:"nitrogen"`
	Phosphorus    *float64 `json:"phosphorus"`
	Potassium     *float64 `json:"potassium"`
	OrganicCarbon *float64 `json:"organicCarbon"`
	Sulphur       *float64 `json:"sulphur"`
	Zinc          *float64 `json:"zinc"`
	Iron          *float64 `json:"iron"`
	Rainfall      *float64 `json:"rainfall"`
}

type CropProbability struct {
	Crop        string  `json:"crop"`
	Probability float64 `json:"probability"`
}

type FertilizerProbability struct {
	Fertilizer  string  `json:"fertilizer"`
	Probability float64 `json:"probability"`
}

// SoilAnalysis is the analysis snapshot stored with a report.
type SoilAnalysis struct {
	SoilHealthAnalysis     string                  `json:"soil_health_analysis"`
	SoilHealthScore        string                  `json:"soil_health_score"`
	SoilHealthGrade        string                  `json:"soil_health_grade"`
	RecommendedCrop        string                  `json:"recommended_crop"`
	RecommendedFertilizers string                  `json:"recommended_fertilizers"`
	TopCrops               []CropProbability       `json:"top_crops"`
	TopFertilizers         []FertilizerProbability `json:"top_fertilizers"`
}

// SoilReport is one completed analysis. Reports are written once and never updated.
type SoilReport struct {
	ID                 string            `db:"id" json:"id"`
	UserID             string            `db:"user_id" json:"user_id"`
	Source             SourceKind        `db:"source" json:"source"`
	PdfURL             *string           `db:"pdf_url" json:"pdf_url"`
	ExtractedInputData *NutrientSnapshot `db:"extracted_input_data" json:"extracted_input_data"`
	Analysis           *SoilAnalysis     `db:"analysis" json:"analysis"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
}

// ChatSession represents one conversation thread, optionally grounded in a report.
type ChatSession struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Title          string    `db:"title" json:"title"`
	LinkedReportID *string   `db:"linked_report_id" json:"linked_report"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ChatMessage represents an individual chat message (user or assistant).
type ChatMessage struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Sender    string    `db:"sender" json:"sender"`   // "user" or "assistant"
	Message   string    `db:"message" json:"message"` // message text
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
