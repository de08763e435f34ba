package models

// ExtractResponse is the response for POST /api/v1/extract.
type ExtractResponse struct {
	// Success mirrors Result.Status == "success".
	Success bool `json:"success"`

	Result *ExtractionResult `json:"result,omitempty"`

	// Error is populated for request-level failures (bad input, no session,
	// navigation failure). An empty extraction has Success=false and no Error.
	Error *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string    `json:"status"` // "healthy" or "degraded"
	Uptime       string    `json:"uptime"`
	PoolStats    PoolStats `json:"pool_stats"`
	RulesVersion string    `json:"rules_version"`
	Version      string    `json:"version"`
}

// PoolStats reports the state of the browser process pool.
type PoolStats struct {
	MinSize  int `json:"min_size"`
	MaxSize  int `json:"max_size"`
	Total    int `json:"total"`
	Idle     int `json:"idle"`
	InUse    int `json:"in_use"`
	Waiting  int `json:"waiting"`
	Retired  int `json:"retired"`
	Launched int `json:"launched"`
}
