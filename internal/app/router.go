package app

import (
	"exam_review_backend/docs"
	"exam_review_backend/internal/config"
	"exam_review_backend/internal/middleware"
	"exam_review_backend/internal/model"
	"exam_review_backend/internal/util"
	"exam_review_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 题目测试
	testing := router.Group("/api/testing")
	testing.Use(middleware.AuthMiddleware(cfg))
	{
		testing.POST("/questions/:id/runs", c.testing.StartRun)
		testing.POST("/questions/:id/runs/:runId/start", c.testing.StartExistingRun)

		testing.GET("/runs", c.testing.ListRuns)
		testing.GET("/runs/:id", c.testing.GetRun)
		testing.GET("/runs/:id/progress", c.testing.GetProgress)
		testing.DELETE("/runs/:id", c.testing.DeleteRun)

		testing.PUT("/runs/:id/review", middleware.RoleMiddleware(model.RoleReviewer), c.testing.ReviewRun)
		testing.POST("/runs/batch-delete", middleware.RoleMiddleware(model.RoleAdmin), c.testing.BatchDelete)
	}

	router.NoRoute(util.NotFound)
}
