// Package api serves the read-only dashboard API over the query layer.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nationradar/nation-radar/internal/domain"
	"github.com/nationradar/nation-radar/internal/logger"
	"github.com/nationradar/nation-radar/internal/metrics"
	"github.com/nationradar/nation-radar/internal/query"
)

// Querier is the read side the handlers depend on. *query.Service implements it.
type Querier interface {
	All(ctx context.Context) ([]domain.StoredPost, error)
	Latest(ctx context.Context, limit int) ([]domain.StoredPost, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.StoredPost, error)
	Search(ctx context.Context, q string, limit int) ([]domain.StoredPost, error)
	Stats(ctx context.Context) (query.Stats, error)
}

// Options configures the router.
type Options struct {
	ServiceName string
	Release     bool
	Metrics     metrics.Recorder
	Logger      logger.Logger
}

// NewRouter builds the gin engine with every dashboard route.
func NewRouter(q Querier, opts Options) *gin.Engine {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	log := logger.Ensure(opts.Logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observe(opts.Metrics, log))

	h := &handlers{q: q, service: opts.ServiceName, now: time.Now}

	router.GET("/", h.index)
	router.GET("/health", h.health)

	api := router.Group("/api")
	api.GET("/tweets", h.latest)
	api.GET("/leaderboard", h.leaderboard)
	api.GET("/stats", h.stats)
	api.GET("/search", h.search)
	api.GET("/posts/all", h.all)

	if mh := opts.Metrics.Handler(); mh != nil {
		router.GET("/metrics", gin.WrapH(mh))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	})
	return router
}

// observe records request metrics and logs each request at debug level.
func observe(rec metrics.Recorder, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		rec.ObserveRequest(route, c.Writer.Status(), elapsed)
		log.DebugObj("http request", "request", map[string]any{
			"method":     c.Request.Method,
			"route":      route,
			"status":     c.Writer.Status(),
			"elapsed_ms": elapsed.Milliseconds(),
		})
	}
}
