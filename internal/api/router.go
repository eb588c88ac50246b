package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"companion-bot/backend/internal/pipeline"
	"companion-bot/backend/pkg/config"
	"companion-bot/backend/pkg/errors"
	"companion-bot/backend/pkg/logger"
	"companion-bot/backend/pkg/middleware"
)

// NewRouter builds the HTTP surface: request IDs, transport rate
// limiting, error handling, the message endpoints, health and metrics.
func NewRouter(cfg *config.Config, p *pipeline.Pipeline, log *logger.Logger) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(errors.RecoveryWithLogger(log))
	engine.Use(errors.ErrorHandler(log))

	limiter := middleware.NewRateLimiter(log, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Security.RateLimit),
		Burst:          cfg.Security.RateLimitBurst,
		ExpiryDuration: middleware.DefaultRateLimiterOptions().ExpiryDuration,
		KeyFunc:        middleware.DefaultRateLimiterOptions().KeyFunc,
	})
	engine.Use(limiter.Middleware())

	NewMessageController(p, log).RegisterRoutes(engine)
	(&Handler{}).RegisterHealthRoutes(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return engine
}
