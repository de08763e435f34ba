package models

import (
	"errors"
	"fmt"
)

// Error codes used in results, API responses and internal error handling.
const (
	ErrCodeSession      = "SESSION_FAILED"
	ErrCodeTimeout      = "SCRAPE_TIMEOUT"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeExtraction   = "EXTRACTION_FAILED"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"

	// Analysis collaborator error codes for /api/v1/analyze.
	ErrCodeAnalysisFailure     = "ANALYSIS_FAILURE"
	ErrCodeAnalysisAuthFailure = "ANALYSIS_AUTH_FAILURE"
	ErrCodeAnalysisRateLimited = "ANALYSIS_RATE_LIMITED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first ScrapeError in err's chain,
// or ErrCodeInternal for any other non-nil error.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// IsSessionError reports whether err means no browser session could be created.
func IsSessionError(err error) bool {
	return CodeOf(err) == ErrCodeSession
}

// IsNavigationError reports whether err is a fatal page-load failure,
// including a navigation timeout.
func IsNavigationError(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeNavigation || code == ErrCodeTimeout
}
