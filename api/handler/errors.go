package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/insightx/models"
)

// statusFor translates error codes to HTTP status codes.
func statusFor(code string) int {
	switch code {
	case models.ErrCodeSession:
		return http.StatusServiceUnavailable
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case models.ErrCodeNavigation, models.ErrCodeAnalysisFailure:
		return http.StatusBadGateway
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case models.ErrCodeExtraction:
		return http.StatusUnprocessableEntity
	case models.ErrCodeRateLimited, models.ErrCodeAnalysisRateLimited:
		return http.StatusTooManyRequests
	case models.ErrCodeUnauthorized, models.ErrCodeAnalysisAuthFailure:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// toScrapeError returns err as a ScrapeError, wrapping foreign errors as internal.
func toScrapeError(err error) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
}

// invalidInput aborts with a 400 in the shared error envelope.
func invalidInput(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ExtractResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: err.Error(),
		},
	})
}

// resultError rebuilds the error detail carried by a failed result, or nil
// for an empty extraction.
func resultError(res *models.ExtractionResult) *models.ErrorDetail {
	if res.Succeeded() || res.ErrorCode == "" {
		return nil
	}
	return &models.ErrorDetail{Code: res.ErrorCode, Message: res.Error}
}
