package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrSessionNotFound = fmt.Errorf("chat session %w", ErrNotFound)
	ErrReportNotFound  = fmt.Errorf("soil report %w", ErrNotFound)
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrPersistence     = errors.New("persistence failure")

	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
	ErrUpstreamRejected      = errors.New("upstream rejected request")
	ErrUpstreamQuotaExceeded = errors.New("upstream quota exceeded")
	ErrAssistantUnavailable  = errors.New("assistant unavailable")
)

// ValidationError is a user-correctable problem with the request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamError describes a failed call to an external service. Kind is one of
// the ErrUpstream* sentinels, so callers match with errors.Is.
type UpstreamError struct {
	Kind    error
	Service string
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Service, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
