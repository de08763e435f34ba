package models

import (
	"bytes"
	"encoding/json"
)

// Analysis is the sentiment breakdown returned by the analysis endpoint.
type Analysis struct {
	Platform     string        `json:"platform"`
	TotalReviews ReviewCount   `json:"total_reviews"`
	Good         []AnalysisTag `json:"good"`
	Bad          []AnalysisTag `json:"bad"`
}

// AnalysisTag is one topic with its share (or count) of mentions.
type AnalysisTag struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// AnalyzeResponse is the response for POST /api/v1/analyze.
type AnalyzeResponse struct {
	Success  bool              `json:"success"`
	Result   *ExtractionResult `json:"result,omitempty"`
	Analysis *Analysis         `json:"analysis,omitempty"`
	Usage    *LLMUsage         `json:"llm_usage,omitempty"`
	Error    *ErrorDetail      `json:"error,omitempty"`
}

// LLMUsage reports the token consumption of the analysis call.
type LLMUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ReviewCount is the analysis endpoint's estimate of how many reviews the
// text held. Models answer with a number or a phrase ("N/A", "about 40"),
// so both decode to a string.
type ReviewCount string

func (c *ReviewCount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ReviewCount(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = ReviewCount(n.String())
	return nil
}
