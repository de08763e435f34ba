package main

import (
	"fmt"
	"strings"

	"github.com/use-agent/insightx/models"
)

// failureMessage renders a failed API response for the tool caller.
func failureMessage(detail *models.ErrorDetail, res *models.ExtractionResult) string {
	if detail != nil {
		return fmt.Sprintf("[%s] %s", detail.Code, detail.Message)
	}
	if res != nil && res.Status == models.StatusFailed {
		return "no review text found on page"
	}
	return "extraction failed"
}

// formatResult puts a short header in front of the review text.
func formatResult(res *models.ExtractionResult) string {
	if res == nil {
		return ""
	}
	var sb strings.Builder
	if res.Metadata.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", res.Metadata.Title)
	}
	fmt.Fprintf(&sb, "Source: %s\nPlatform: %s\n", res.URL, res.Platform)
	if res.ResolvedURL != "" {
		fmt.Fprintf(&sb, "Resolved: %s\n", res.ResolvedURL)
	}
	sb.WriteString("\n")
	sb.WriteString(res.Text)
	return sb.String()
}

func formatAnalysis(a *models.Analysis) string {
	if a == nil {
		return "no analysis returned"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Platform: %s\nReviews: %s\n", a.Platform, a.TotalReviews)
	writeTags(&sb, "Good", a.Good)
	writeTags(&sb, "Bad", a.Bad)
	return sb.String()
}

func writeTags(sb *strings.Builder, heading string, tags []models.AnalysisTag) {
	fmt.Fprintf(sb, "\n%s:\n", heading)
	if len(tags) == 0 {
		sb.WriteString("  (none)\n")
		return
	}
	for _, t := range tags {
		fmt.Fprintf(sb, "  - %s: %g\n", t.Label, t.Value)
	}
}

func formatBatch(s *models.BatchStatusResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s: %s (%d/%d succeeded)\n\n", s.ID, s.Status, s.Succeeded, s.Total)

	for i, res := range s.Results {
		switch {
		case res == nil:
			fmt.Fprintf(&sb, "--- [%d] MISSING ---\n\n", i+1)
		case res.Succeeded():
			fmt.Fprintf(&sb, "--- [%d] %s ---\n%s\n\n", i+1, res.URL, res.Text)
		default:
			msg := res.Error
			if msg == "" {
				msg = "no review text found"
			}
			fmt.Fprintf(&sb, "--- [%d] FAILED: %s ---\n\n", i+1, msg)
		}
	}
	return sb.String()
}
