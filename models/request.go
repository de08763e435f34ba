package models

// ExtractRequest is the payload for POST /api/v1/extract.
type ExtractRequest struct {
	// URL is the absolute URL of the review page. Required.
	URL string `json:"url" binding:"required,url"`

	// MaxAge enables the response cache for this request: a cached result
	// younger than MaxAge milliseconds is returned without launching a browser.
	// Default: 0 (no caching).
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// AnalyzeRequest is the payload for POST /api/v1/analyze.
// The analysis endpoint credentials travel with every request (BYOK);
// nothing is kept between calls.
type AnalyzeRequest struct {
	// URL is the absolute URL of the review page. Required.
	URL string `json:"url" binding:"required,url"`

	// APIKey is the caller's key for the OpenAI-compatible analysis endpoint. Required.
	APIKey string `json:"llm_api_key" binding:"required"`

	// Model is the model name. Default: config Analysis.DefaultModel.
	Model string `json:"llm_model,omitempty"`

	// BaseURL is the endpoint base URL. Default: config Analysis.DefaultBaseURL.
	BaseURL string `json:"llm_base_url,omitempty" binding:"omitempty,url"`
}

// Defaults applies default values to unset fields.
func (r *AnalyzeRequest) Defaults(model, baseURL string) {
	if r.Model == "" {
		r.Model = model
	}
	if r.BaseURL == "" {
		r.BaseURL = baseURL
	}
}
