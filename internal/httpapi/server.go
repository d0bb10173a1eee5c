// Package httpapi exposes the read endpoints and operator actions over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/minasamir1401/werete/internal/cache"
	"github.com/minasamir1401/werete/internal/db"
	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/logger"
	"github.com/minasamir1401/werete/internal/metrics"
	"github.com/minasamir1401/werete/internal/reconcile"
	"github.com/minasamir1401/werete/internal/scheduler"
	"github.com/minasamir1401/werete/internal/sources"
)

// Cycles is the scheduler surface used by /health and the run endpoint.
type Cycles interface {
	RunNow(ctx context.Context, d items.Domain) (scheduler.Report, error)
	Status() []scheduler.Report
}

type HistoryFetcher interface {
	Fetch(ctx context.Context, days int) ([]sources.HistoryPoint, error)
}

type Notifier interface {
	NotifyAdmins(ctx context.Context, text string)
}

type Deps struct {
	Store     *db.DB
	Writer    *reconcile.Writer
	Cache     *cache.Snapshot
	Resolver  *sources.Resolver
	Cycles    Cycles
	Backfill  HistoryFetcher
	Notifier  Notifier
	Metrics   *metrics.Metrics
	BackupDir string
}

type Handler struct {
	Deps
	now func() time.Time
}

func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d, now: time.Now}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler, debug bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if debug {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(requestLogger(), recovery())
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/prices/:asset", h.GetPrices)
		// Instrument keys may contain "/" (currency pairs), hence the catch-all.
		api.GET("/history/:asset/:country/*key", h.GetHistory)
	}

	admin := api.Group("/admin")
	{
		admin.GET("/sources/:domain", h.ListSources)
		admin.PUT("/sources/:domain", h.ReplaceSources)
		admin.PUT("/sources/:domain/:name", h.SetSourceEnabled)

		admin.GET("/overrides", h.ListOverrides)
		admin.POST("/overrides", h.SetOverride)
		admin.DELETE("/overrides/:asset/:country/*key", h.ClearOverride)

		admin.POST("/backup", h.Backup)
		admin.POST("/backfill", h.BackfillHistory)
		admin.POST("/run/:domain", h.RunDomain)
	}
}

type requestIDKey struct{}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		ctx := context.WithValue(c.Request.Context(), requestIDKey{}, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		args := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn(ctx, "http request failed", args...)
			return
		}
		logger.Debug(ctx, "http request", args...)
	}
}

func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestID, _ := c.Request.Context().Value(requestIDKey{}).(string)
				logger.Error(c.Request.Context(), "http handler panicked", "request_id", requestID, "panic", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "internal server error",
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}
