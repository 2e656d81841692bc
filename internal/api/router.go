package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"parking-display-backend/config"
	"parking-display-backend/internal/mw"
)

// NewRouter creates and configures the Gin router.
func NewRouter(h *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/reservations", h.CreateReservation)
		api.DELETE("/reservations/:id", h.CancelReservation)

		api.GET("/spaces", caching, h.ListSpaces)
		api.PUT("/spaces/:space_id", h.PutSpace)
		api.GET("/spaces/:space_id/reservations", h.ListReservations)
		api.PUT("/spaces/:space_id/override", h.PutOverride)
		api.DELETE("/spaces/:space_id/override", h.DeleteOverride)
		api.POST("/spaces/:space_id/recompute", h.ForceRecompute)

		api.POST("/uplinks", h.PostUplink)

		api.GET("/queue/stats", h.GetQueueStats)
		api.GET("/queue/dead_letters", h.ListDeadLetters)
		api.POST("/queue/dead_letters/:id/requeue", h.RequeueDeadLetter)
		api.DELETE("/queue/dead_letters/:id", h.PurgeDeadLetter)
	}

	return r
}
