package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
)

const quotaMessage = "AI service quota exceeded. Please try again later."

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse writes the {"message": ...} body every failure uses.
func ErrorResponse(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{"message": message})
}

// writeError maps err onto a status code. Validation and not-found messages
// are user-facing; anything else is logged and replaced by fallback.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var ve *apperrors.ValidationError
	switch {
	case errors.As(err, &ve):
		_ = ErrorResponse(w, http.StatusBadRequest, ve.Message)
	case errors.Is(err, apperrors.ErrUnauthenticated):
		_ = ErrorResponse(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, apperrors.ErrSessionNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "Chat session not found")
	case errors.Is(err, apperrors.ErrReportNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "Soil report not found")
	case errors.Is(err, apperrors.ErrNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, apperrors.ErrConflict):
		_ = ErrorResponse(w, http.StatusConflict, "Resource already exists")
	case errors.Is(err, apperrors.ErrUpstreamQuotaExceeded):
		logger.Warn("Upstream quota exceeded", zap.Error(err))
		_ = ErrorResponse(w, http.StatusTooManyRequests, quotaMessage)
	default:
		logger.Error(fallback, zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, fallback)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidationError("Invalid request body")
	}
	return nil
}
