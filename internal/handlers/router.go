package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/assessment-session-engine/internal/metrics"
	"github.com/SAP-F-2025/assessment-session-engine/internal/services"
	"github.com/SAP-F-2025/assessment-session-engine/internal/utils"
)

// RouterConfig carries the HTTP concerns that sit around the handlers.
// Metrics and TokenParser are optional.
type RouterConfig struct {
	CORSOrigins     []string
	RateLimit       int
	RateLimitWindow time.Duration
	MaxUploadMB     int
	TokenParser     TokenParser
	Metrics         *metrics.Metrics
}

type HandlerManager struct {
	sessionHandler *SessionHandler
	logger         utils.Logger
	cfg            RouterConfig
}

func NewHandlerManager(sessionService services.SessionService, cfg RouterConfig, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(sessionService, cfg.MaxUploadMB, logger),
		logger:         logger,
		cfg:            cfg,
	}
}

// NewRouter builds the engine with the global middleware chain and all
// routes. ctx bounds the background work of the rate limiter.
func (hm *HandlerManager) NewRouter(ctx context.Context) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.RequestLogger(hm.logger))
	router.Use(CORSMiddleware(hm.cfg.CORSOrigins))
	if hm.cfg.Metrics != nil {
		router.Use(hm.cfg.Metrics.MetricsMiddleware())
		router.GET("/metrics", hm.cfg.Metrics.PrometheusHandler())
	}

	hm.SetupRoutes(ctx, router)
	return router
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(ctx context.Context, router *gin.Engine) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(hm.cfg.TokenParser))
	v1.Use(RateLimiter(ctx, hm.cfg.RateLimit, hm.cfg.RateLimitWindow))
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.DELETE("/:id", hm.sessionHandler.CloseSession)

			// Answers
			sessions.PUT("/:id/answers/:question_id", hm.sessionHandler.ReplaceAnswer)
			sessions.POST("/:id/answers/:question_id/toggle", hm.sessionHandler.ToggleOption)
			sessions.PUT("/:id/answers/:question_id/pairs", hm.sessionHandler.SetMatch)
			sessions.POST("/:id/answers/:question_id/file", hm.sessionHandler.UploadFile)

			sessions.POST("/:id/navigation", hm.sessionHandler.Navigate)

			// Lifecycle
			sessions.POST("/:id/submit", hm.sessionHandler.SubmitSession)
			sessions.POST("/:id/retake", hm.sessionHandler.RetakeSession)
			sessions.GET("/:id/result", hm.sessionHandler.GetResult)
			sessions.GET("/:id/result/export", hm.sessionHandler.ExportResult)
		}

		v1.GET("/attempts", hm.sessionHandler.ListAttempts)
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "assessment-session-engine",
	})
}
