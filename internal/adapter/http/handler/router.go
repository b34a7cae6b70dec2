package handler

import (
	"sim-provisioning-notifier/config"
	"sim-provisioning-notifier/internal/adapter/http/middleware"
	"sim-provisioning-notifier/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const maxRequestBody = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LifecycleSvc   ports.LifecycleService
	Registry       ports.WebhookRegistry
	TokenSvc       ports.TokenService
	RateLimitStore middleware.RateLimitStore // nil = rate limiting disabled
	RateLimit      config.RateLimitConfig
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxRequestBody))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rules := middleware.RateLimitRules(deps.RateLimit)
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil || !deps.RateLimit.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rules[group], deps.Logger)
	}

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	simHandler := NewSimHandler(deps.LifecycleSvc)
	sims := v1.Group("/sims")
	{
		sims.GET("/:id", rl(middleware.GroupReads), simHandler.GetSim)
		sims.GET("/:id/events", rl(middleware.GroupReads), simHandler.ListEvents)
		sims.POST("/:id/activate", rl(middleware.GroupTransitions), simHandler.Activate)
		sims.POST("/:id/deactivate", rl(middleware.GroupTransitions), simHandler.Deactivate)
		sims.POST("/:id/block", rl(middleware.GroupTransitions), simHandler.Block)
		sims.POST("/:id/unblock", rl(middleware.GroupTransitions), simHandler.Unblock)
	}

	webhookHandler := NewWebhookHandler(deps.Registry)
	webhooks := v1.Group("/webhooks")
	{
		webhooks.POST("", rl(middleware.GroupWebhooks), webhookHandler.Register)
		webhooks.GET("", rl(middleware.GroupReads), webhookHandler.List)
		webhooks.GET("/:id", rl(middleware.GroupReads), webhookHandler.Get)
		webhooks.DELETE("/:id", rl(middleware.GroupWebhooks), webhookHandler.Delete)
		webhooks.POST("/:id/pause", rl(middleware.GroupWebhooks), webhookHandler.Pause)
		webhooks.POST("/:id/resume", rl(middleware.GroupWebhooks), webhookHandler.Resume)
		webhooks.GET("/:id/deliveries", rl(middleware.GroupReads), webhookHandler.ListDeliveries)
	}

	return r
}
