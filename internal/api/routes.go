package api

import (
	"github.com/RishiKendai/labcheck/internal/config"
	"github.com/RishiKendai/labcheck/internal/metrics"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(cfg *config.Config, handler *Handler) *gin.Engine {
	router := gin.Default()
	router.MaxMultipartMemory = cfg.MaxUploadBytes

	// Create rate limiter
	rateLimiter := NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS*2))

	// Middleware
	router.Use(metrics.GinMiddleware())
	router.Use(ErrorHandlerMiddleware())

	// Health endpoint (no auth)
	router.GET("/health", handler.Health)

	// API routes (with auth and rate limiting)
	api := router.Group("/api/v1")
	if cfg.AuthEnabled() {
		api.Use(JWTAuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))
	}
	api.Use(RateLimitMiddleware(rateLimiter))
	{
		api.POST("/reports", handler.UploadReport)
		api.GET("/reports", handler.ListReports)
		api.DELETE("/reports", handler.DeleteReports)
		api.GET("/reports/:id", handler.GetReport)
		api.PATCH("/reports/:id", handler.UpdateReport)
		api.DELETE("/reports/:id", handler.DeleteReport)
		api.POST("/reports/:id/checks", handler.RecheckReport)

		api.GET("/checks/:id", handler.GetCheck)
		api.GET("/checks/:id/status", handler.GetCheckStatus)

		api.GET("/diff", handler.Diff)
	}

	return router
}
