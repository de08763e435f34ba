package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/insightx/models"
	"github.com/use-agent/insightx/rules"
)

// Classify derives the variant from URL markers alone.
func Classify(r *rules.Rules, rawURL string) models.Variant {
	if r.IsMapURL(rawURL) || r.IsShortlink(rawURL) {
		return models.VariantMapReview
	}
	return models.VariantGeneric
}

// Navigator loads a URL with the wait strategy of its variant.
type Navigator struct {
	Rules          *rules.Rules
	MapTimeout     time.Duration
	GenericTimeout time.Duration
	Settle         time.Duration
	Sleep          SleepFunc
}

// Navigate classifies rawURL and loads it. Map-review pages wait for
// DOMContentLoaded and then settle for a fixed delay, since their content
// renders after the document is ready. Generic pages wait for network
// idle. Failures are fatal and never retried.
func (n *Navigator) Navigate(ctx context.Context, page Page, rawURL string) (models.Variant, error) {
	variant := Classify(n.Rules, rawURL)

	until, timeout := LoadNetworkIdle, n.GenericTimeout
	if variant == models.VariantMapReview {
		until, timeout = LoadDOMReady, n.MapTimeout
	}

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := page.Navigate(navCtx, rawURL, until); err != nil {
		return variant, categorizeError(err, "navigation")
	}
	// Some drivers return on deadline without an error.
	if err := navCtx.Err(); err != nil {
		return variant, categorizeError(err, "navigation")
	}

	if variant == models.VariantMapReview && n.Settle > 0 {
		if err := n.Sleep(ctx, n.Settle); err != nil {
			return variant, categorizeError(err, "page settle")
		}
	}

	slog.Debug("navigation complete", "url", rawURL, "variant", variant, "until", until)
	return variant, nil
}

// categorizeError wraps raw errors into typed ScrapeErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, what string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, what+" timed out", err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, what+" failed", err)
	}
}
