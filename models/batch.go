package models

// BatchRequest is the payload for POST /api/v1/batch/extract.
type BatchRequest struct {
	// URLs is the list of review pages to extract. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=100,dive,url"`

	// WebhookURL receives the final BatchStatusResponse when the job ends.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs webhook payloads (HMAC-SHA256). Optional.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/batch/extract.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string              `json:"id"`
	Status    string              `json:"status"`
	Completed int                 `json:"completed"`
	Succeeded int                 `json:"succeeded"`
	Total     int                 `json:"total"`
	Results   []*ExtractionResult `json:"results,omitempty"`
}

// Batch job status values.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobPartial    = "partial"
	JobFailed     = "failed"
)

// BatchJob tracks an in-progress batch extraction.
type BatchJob struct {
	ID        string
	Status    string
	Total     int
	Completed int
	Results   []*ExtractionResult
	CreatedAt int64 // unix timestamp

	WebhookURL    string
	WebhookSecret string
}

// FinalStatus derives the terminal job status from its results.
func (j *BatchJob) FinalStatus() string {
	ok := 0
	for _, r := range j.Results {
		if r.Succeeded() {
			ok++
		}
	}
	switch {
	case ok == len(j.Results):
		return JobCompleted
	case ok == 0:
		return JobFailed
	default:
		return JobPartial
	}
}
