package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/insightx/config"
	"github.com/use-agent/insightx/llm"
	"github.com/use-agent/insightx/models"
)

// Analyzer sends extracted text to the external analysis endpoint.
type Analyzer interface {
	Analyze(ctx context.Context, in llm.AnalyzeInput, params llm.Params) (*llm.AnalyzeResult, error)
}

// Analyze returns a handler for POST /api/v1/analyze.
//
// Flow:
//  1. Parse & validate AnalyzeRequest, apply defaults.
//  2. Run the pipeline; any failure, including an empty extraction, ends here.
//  3. Send the text, platform and site name to the analysis endpoint with
//     the caller's credentials.
func Analyze(ex Extractor, an Analyzer, cfg config.AnalysisConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		req.Defaults(cfg.DefaultModel, cfg.DefaultBaseURL)

		res := ex.Extract(c.Request.Context(), req.URL)
		if !res.Succeeded() {
			detail := resultError(res)
			if detail == nil {
				detail = &models.ErrorDetail{
					Code:    models.ErrCodeExtraction,
					Message: "no review text found on page",
				}
			}
			c.JSON(statusFor(detail.Code), models.AnalyzeResponse{
				Success: false,
				Result:  res,
				Error:   detail,
			})
			return
		}

		ctx := c.Request.Context()
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		out, err := an.Analyze(ctx, llm.AnalyzeInput{
			Text:     res.Text,
			URL:      req.URL,
			Platform: res.Platform,
			SiteName: res.Metadata.SiteName,
		}, llm.Params{
			APIKey:  req.APIKey,
			Model:   req.Model,
			BaseURL: req.BaseURL,
		})
		if err != nil {
			se := toScrapeError(err)
			c.JSON(statusFor(se.Code), models.AnalyzeResponse{
				Success: false,
				Result:  res,
				Error:   se.ToDetail(),
			})
			return
		}

		c.JSON(http.StatusOK, models.AnalyzeResponse{
			Success:  true,
			Result:   res,
			Analysis: out.Analysis,
			Usage:    out.Usage,
		})
	}
}
