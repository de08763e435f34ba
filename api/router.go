package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/insightx/api/handler"
	"github.com/use-agent/insightx/api/middleware"
	"github.com/use-agent/insightx/cache"
	"github.com/use-agent/insightx/config"
	"github.com/use-agent/insightx/models"
)

// Deps are the services the routes are wired to.
type Deps struct {
	Extractor    handler.Extractor
	Analyzer     handler.Analyzer
	Notifier     handler.Notifier
	Cache        *cache.Cache
	Batches      *handler.Batches
	PoolStats    func() models.PoolStats
	RulesVersion string
	StartTime    time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery, Logger
//	API:     Auth (if enabled), then a per-route rate charge
//
// Every route shares one limiter per caller. A batch is charged one token
// per URL since each URL runs a full pipeline. Health stays outside auth.
func NewRouter(cfg *config.Config, d Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(d.PoolStats, d.RulesVersion, d.StartTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	limiter := middleware.NewLimiter(cfg.RateLimit)
	perRequest := limiter.Charge(nil)

	protected.POST("/extract", perRequest, handler.Extract(d.Extractor, d.Cache, d.RulesVersion))
	protected.POST("/analyze", perRequest, handler.Analyze(d.Extractor, d.Analyzer, cfg.Analysis))

	protected.POST("/batch/extract", limiter.Charge(middleware.BatchCost),
		handler.PostBatch(d.Extractor, d.Batches, d.Notifier, cfg.Batch.Concurrency))
	protected.GET("/batch/:id", perRequest, handler.GetBatch(d.Batches))

	return r
}
