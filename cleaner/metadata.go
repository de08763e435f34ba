package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/insightx/models"
)

// PageMetadata returns the title, site name and language of a rendered page.
//
// Readability is tried first. Review pages are often too fragmented for it,
// so any missing field is filled from <title>, og:site_name and <html lang>.
// It never fails; unknown fields stay empty.
func PageMetadata(rawHTML, sourceURL string) models.Metadata {
	var meta models.Metadata

	if parsedURL, err := nurl.Parse(sourceURL); err == nil {
		article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
		if err != nil {
			slog.Debug("metadata: readability failed", "url", sourceURL, "error", err)
		} else {
			meta.Title = strings.TrimSpace(article.Title)
			meta.SiteName = strings.TrimSpace(article.SiteName)
			meta.Language = strings.TrimSpace(article.Language)
		}
	}

	if meta.Title != "" && meta.SiteName != "" && meta.Language != "" {
		return meta
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return meta
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if meta.SiteName == "" {
		if v, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok {
			meta.SiteName = strings.TrimSpace(v)
		}
	}
	if meta.Language == "" {
		if v, ok := doc.Find("html").Attr("lang"); ok {
			meta.Language = strings.TrimSpace(v)
		}
	}
	return meta
}
