package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/insightx/models"
)

// Version is the service version reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and degrades status when every process is busy
// and requests are queueing.
func Health(stats func() models.PoolStats, rulesVersion string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := stats()

		status := "healthy"
		if s.Waiting > 0 && s.InUse >= s.MaxSize {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			PoolStats:    s,
			RulesVersion: rulesVersion,
			Version:      Version,
		})
	}
}
