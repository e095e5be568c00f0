package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, handlers *APIHandlers, logger *logrus.Logger) {
	// Global middleware
	router.Use(Recovery(logger))
	router.Use(RequestLogger(logger))
	router.Use(CORS())

	// Health check (public)
	router.GET("/health", handlers.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	v1.Use(RateLimiter(100)) // 100 requests per minute per IP

	robots := v1.Group("/robots")
	{
		robots.GET("", handlers.ListRobots)
		robots.POST("/start-all", handlers.StartAllRobots)
		robots.POST("/stop-all", handlers.StopAllRobots)

		robots.GET("/:id/status", handlers.GetRobotStatus)
		robots.POST("/:id/start", handlers.StartRobot)
		robots.POST("/:id/stop", handlers.StopRobot)
		robots.POST("/:id/reset", handlers.ResetRobot)
		robots.POST("/:id/maintenance", handlers.SetMaintenance)
	}

	stats := v1.Group("/stats")
	{
		stats.GET("/operational", handlers.GetOperationalStats)
		stats.GET("/daily", handlers.GetDailyStats)
		stats.GET("/hourly", handlers.GetHourlyPerformance)
		stats.DELETE("/cache", handlers.ClearStatsCache)
	}

	alerts := v1.Group("/alerts")
	{
		alerts.GET("", handlers.GetAlerts)
		alerts.GET("/critical", handlers.GetCriticalAlerts)
	}

	v1.POST("/dashboard/reset", handlers.ResetDashboard)

	retention := v1.Group("/retention")
	{
		retention.POST("/archive", handlers.TriggerArchive)
		retention.POST("/cleanup", handlers.TriggerCleanup)
	}
}
