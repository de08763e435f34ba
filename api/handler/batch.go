package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/insightx/models"
	"github.com/use-agent/insightx/webhook"
)

// Notifier delivers the completion event of a batch job.
type Notifier interface {
	DeliverAsync(url, secret string, event *webhook.Event)
}

// Batches holds all in-flight and completed batch jobs in memory.
// Finished jobs expire after the configured TTL.
type Batches struct {
	mu   sync.RWMutex
	jobs map[string]*models.BatchJob
	ttl  time.Duration
}

// NewBatches creates a job store and starts its expiry loop.
func NewBatches(ttl time.Duration) *Batches {
	if ttl <= 0 {
		ttl = time.Hour
	}
	b := &Batches{jobs: make(map[string]*models.BatchJob), ttl: ttl}
	go b.cleanupLoop()
	return b
}

func (b *Batches) add(job *models.BatchJob) {
	b.mu.Lock()
	b.jobs[job.ID] = job
	b.mu.Unlock()
}

// record stores one URL's result.
func (b *Batches) record(job *models.BatchJob, idx int, res *models.ExtractionResult) {
	b.mu.Lock()
	job.Results[idx] = res
	job.Completed++
	b.mu.Unlock()
}

func (b *Batches) finish(job *models.BatchJob) models.BatchStatusResponse {
	b.mu.Lock()
	job.Status = job.FinalStatus()
	b.mu.Unlock()
	s, _ := b.Status(job.ID)
	return s
}

// Status returns a snapshot of job id.
func (b *Batches) Status(id string) (models.BatchStatusResponse, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	job, ok := b.jobs[id]
	if !ok {
		return models.BatchStatusResponse{}, false
	}

	results := make([]*models.ExtractionResult, len(job.Results))
	copy(results, job.Results)
	succeeded := 0
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}
	return models.BatchStatusResponse{
		ID:        job.ID,
		Status:    job.Status,
		Completed: job.Completed,
		Succeeded: succeeded,
		Total:     job.Total,
		Results:   results,
	}, true
}

func (b *Batches) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		b.expire(time.Now().Add(-b.ttl).Unix())
	}
}

// expire drops finished jobs created before cutoff.
func (b *Batches) expire(cutoff int64) {
	b.mu.Lock()
	for id, job := range b.jobs {
		if job.Status != models.JobProcessing && job.CreatedAt < cutoff {
			delete(b.jobs, id)
		}
	}
	b.mu.Unlock()
}

// PostBatch returns a handler for POST /api/v1/batch/extract.
// It validates the request, creates a batch job, and extracts the URLs in
// the background with at most concurrency pipelines in flight.
func PostBatch(ex Extractor, store *Batches, notifier Notifier, concurrency int) gin.HandlerFunc {
	if concurrency <= 0 {
		concurrency = 1
	}
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}

		job := &models.BatchJob{
			ID:            "batch-" + uuid.NewString(),
			Status:        models.JobProcessing,
			Total:         len(req.URLs),
			Results:       make([]*models.ExtractionResult, len(req.URLs)),
			CreatedAt:     time.Now().Unix(),
			WebhookURL:    req.WebhookURL,
			WebhookSecret: req.WebhookSecret,
		}
		store.add(job)

		go runBatch(ex, store, notifier, job, req.URLs, concurrency)

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: models.JobProcessing,
			Total:  job.Total,
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(store *Batches) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, ok := store.Status(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ExtractResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "batch job not found",
				},
			})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// runBatch processes all URLs in a batch job with concurrency limited by a semaphore.
func runBatch(ex Extractor, store *Batches, notifier Notifier, job *models.BatchJob, urls []string, concurrency int) {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, rawURL := range urls {
		wg.Add(1)
		go func(idx int, target string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			store.record(job, idx, ex.Extract(context.Background(), target))
		}(i, rawURL)
	}
	wg.Wait()

	final := store.finish(job)
	slog.Info("batch job finished",
		"id", job.ID,
		"status", final.Status,
		"succeeded", final.Succeeded,
		"total", final.Total,
	)

	if job.WebhookURL != "" && notifier != nil {
		notifier.DeliverAsync(job.WebhookURL, job.WebhookSecret, &webhook.Event{
			Type:      webhook.EventBatchCompleted,
			JobID:     job.ID,
			Timestamp: time.Now().Unix(),
			Data:      final,
		})
	}
}
