package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/insightx/config"
	"github.com/use-agent/insightx/models"
)

const (
	limiterIdleTTL   = time.Hour
	limiterSweepTick = 5 * time.Minute

	// maxCostPeek bounds how much of a request body a cost function reads.
	maxCostPeek = 1 << 20
)

// CostFunc reports how many pipeline runs a request will start.
type CostFunc func(c *gin.Context) int

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter meters pipeline runs per caller with token buckets. The caller
// is the API key set by Auth, or the client IP without one.
type Limiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter creates a limiter and starts evicting buckets idle for an hour.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{
		rps:     rate.Limit(cfg.RequestsPerSecond),
		burst:   max(cfg.Burst, 1),
		buckets: make(map[string]*bucket),
	}
	go l.sweepLoop()
	return l
}

// RateLimit charges one token per request.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	return NewLimiter(cfg).Charge(nil)
}

// Charge returns middleware that takes cost(c) tokens per request, or one
// when cost is nil. Costs above the burst are capped at it so the largest
// allowed request drains the bucket instead of never fitting.
func (l *Limiter) Charge(cost CostFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		n := 1
		if cost != nil {
			n = min(max(cost(c), 1), l.burst)
		}
		if !l.bucketFor(caller(c)).AllowN(time.Now(), n) {
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited, "rate limit exceeded, please slow down")
			return
		}
		c.Next()
	}
}

// BatchCost charges one token per URL of a batch body. The body is
// restored for the handler; an unreadable body costs one token and is
// left for the handler to reject.
func BatchCost(c *gin.Context) int {
	if c.Request.Body == nil {
		return 1
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCostPeek))
	if err != nil {
		return 1
	}
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), c.Request.Body))

	var body struct {
		URLs []json.RawMessage `json:"urls"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return 1
	}
	return len(body.URLs)
}

func caller(c *gin.Context) string {
	if key := c.GetString(apiKeyContextKey); key != "" {
		return "key:" + key
	}
	return "ip:" + c.ClientIP()
}

func (l *Limiter) bucketFor(id string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[id]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[id] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(limiterSweepTick)
	defer ticker.Stop()
	for range ticker.C {
		l.sweep(time.Now().Add(-limiterIdleTTL))
	}
}

// sweep drops buckets last used before cutoff.
func (l *Limiter) sweep(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, id)
		}
	}
}
