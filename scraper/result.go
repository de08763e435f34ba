package scraper

import (
	"errors"
	"strings"

	"github.com/use-agent/insightx/cleaner"
	"github.com/use-agent/insightx/models"
)

// assemble maps a pipeline outcome to its terminal result. A fatal error
// fails with a message; an empty extraction fails without one.
func assemble(url string, variant models.Variant, tr cleaner.TierResult, err error) *models.ExtractionResult {
	res := &models.ExtractionResult{
		URL:      url,
		Status:   models.StatusFailed,
		Platform: variant,
	}

	if err != nil {
		res.Error = errorMessage(err)
		res.ErrorCode = models.CodeOf(err)
		return res
	}

	if tr.Accepted && strings.TrimSpace(tr.Text) != "" {
		res.Text = tr.Text
		res.Status = models.StatusSuccess
		res.Tier = tr.Tier
	}
	return res
}

// errorMessage renders err for the result. Extraction, navigation and
// internal failures carry their cause so callers can tell them apart.
func errorMessage(err error) string {
	var se *models.ScrapeError
	if !errors.As(err, &se) || se.Message == "" {
		return err.Error()
	}
	switch se.Code {
	case models.ErrCodeExtraction, models.ErrCodeNavigation, models.ErrCodeInternal:
		if se.Err != nil {
			return se.Message + ": " + se.Err.Error()
		}
	}
	return se.Message
}
