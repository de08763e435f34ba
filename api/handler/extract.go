package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/insightx/cache"
	"github.com/use-agent/insightx/models"
)

// Extractor runs the extraction pipeline for one URL. It never fails:
// errors are carried in the result.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) *models.ExtractionResult
}

// Extract returns a handler for POST /api/v1/extract.
//
// Flow:
//  1. Parse & validate ExtractRequest.
//  2. Serve from cache when max_age allows.
//  3. Run the pipeline.
//  4. Cache successes under the URL and, for shortlinks, the resolved URL.
//
// Fatal failures map to an HTTP error status. An empty extraction is a
// 200 with success=false and no error: the page loaded, it had no reviews.
func Extract(ex Extractor, cc *cache.Cache, rulesVersion string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}

		res := extractCached(c.Request.Context(), ex, cc, rulesVersion, req.URL, req.MaxAge)

		status := http.StatusOK
		if detail := resultError(res); detail != nil {
			status = statusFor(detail.Code)
		}
		c.JSON(status, models.ExtractResponse{
			Success: res.Succeeded(),
			Result:  res,
			Error:   resultError(res),
		})
	}
}

// extractCached wraps ex with the response cache. A maxAge of 0 bypasses
// the cache entirely.
func extractCached(ctx context.Context, ex Extractor, cc *cache.Cache, rulesVersion, rawURL string, maxAge int) *models.ExtractionResult {
	if cc == nil || maxAge <= 0 {
		return ex.Extract(ctx, rawURL)
	}

	key := cache.Key(rawURL, rulesVersion)
	if cached, hit := cc.Get(key, maxAge); hit {
		cached.CacheStatus = "hit"
		return cached
	}

	res := ex.Extract(ctx, rawURL)
	res.CacheStatus = "miss"
	cc.Set(key, res)
	if res.ResolvedURL != "" && res.ResolvedURL != rawURL {
		cc.Set(cache.Key(res.ResolvedURL, rulesVersion), res)
	}
	return res
}
