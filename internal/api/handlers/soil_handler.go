package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/services"
)

const (
	pdfFormField = "pdf"
	// multipart overhead allowed on top of the file size cap
	formSlack = 1 << 20
)

type SoilHandler struct {
	soil           *services.SoilService
	maxUploadBytes int64
	tempDir        string
	logger         *zap.Logger
}

func NewSoilHandler(soil *services.SoilService, maxUploadBytes int64, logger *zap.Logger) *SoilHandler {
	return &SoilHandler{
		soil:           soil,
		maxUploadBytes: maxUploadBytes,
		tempDir:        os.TempDir(),
		logger:         logger.Named("soil_handler"),
	}
}

// Analyze accepts a multipart submission: source, plus the pdf file or the
// nutrients JSON string.
func (h *SoilHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formSlack)
	if err := r.ParseMultipartForm(h.maxUploadBytes + formSlack); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = ErrorResponse(w, http.StatusRequestEntityTooLarge, "PDF too large")
			return
		}
		_ = ErrorResponse(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	in := services.AnalyzeInput{
		UserID:    user.ID,
		Source:    strings.TrimSpace(r.FormValue("source")),
		Nutrients: r.FormValue("nutrients"),
	}

	if in.Source == "pdf" {
		path, name, err := h.saveUpload(r)
		if err != nil {
			writeError(w, h.logger, err, "Soil analysis failed")
			return
		}
		in.FilePath = path
		in.FileName = name
	}

	report, err := h.soil.Analyze(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err, "Soil analysis failed")
		return
	}

	_ = WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Soil analysis completed",
		"data":    report,
	})
}

// saveUpload copies the pdf part into a temp file owned by the service from here on.
func (h *SoilHandler) saveUpload(r *http.Request) (string, string, error) {
	file, header, err := r.FormFile(pdfFormField)
	if errors.Is(err, http.ErrMissingFile) {
		return "", "", apperrors.NewValidationError("PDF file is required")
	}
	if err != nil {
		return "", "", apperrors.NewValidationError("Invalid PDF upload")
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		return "", "", apperrors.NewValidationError("PDF too large")
	}
	if !isPDF(header.Filename, header.Header.Get("Content-Type")) {
		return "", "", apperrors.NewValidationError("Only PDF files are allowed")
	}

	tmp, err := os.CreateTemp(h.tempDir, "soil-report-*.pdf")
	if err != nil {
		return "", "", err
	}
	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", "", err
	}

	return tmp.Name(), filepath.Base(header.Filename), nil
}

func isPDF(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/pdf"
}

func (h *SoilHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	reports, err := h.soil.ListReports(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch reports")
		return
	}
	_ = WriteJSON(w, http.StatusOK, reports)
}

func (h *SoilHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	report, err := h.soil.GetReport(r.Context(), user.ID, chi.URLParam(r, "reportId"))
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch report")
		return
	}
	_ = WriteJSON(w, http.StatusOK, report)
}
