package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/whale-spotting-api/internal/app"
	"github.com/noah-isme/whale-spotting-api/internal/handler"
	"github.com/noah-isme/whale-spotting-api/internal/middleware"
	"github.com/noah-isme/whale-spotting-api/internal/models"
	"github.com/noah-isme/whale-spotting-api/pkg/config"
	"github.com/noah-isme/whale-spotting-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/whale-spotting-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/whale-spotting-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, c *app.Container, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.ErrorReporting())
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(c.Metrics))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(c.Metrics, c.DB)
	searchHandler := handler.NewSearchHandler(c.Sightings, c.Exports)
	sightingHandler := handler.NewSightingHandler(c.Sightings)
	ingestHandler := handler.NewIngestHandler(c.Ingest)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/search", searchHandler.Search)
	api.GET("/search/export", searchHandler.Export)

	api.GET("/sightings/recent", sightingHandler.Recent)
	api.GET("/sightings/:id", sightingHandler.Get)
	api.POST("/sightings", sightingHandler.Submit)

	authed := api.Group("")
	authed.Use(middleware.JWT(c.Tokens))

	review := authed.Group("/sightings")
	review.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleReviewer))
	review.GET("/review", sightingHandler.ReviewQueue)
	review.PUT("/:id/confirm", sightingHandler.Confirm)
	review.DELETE("/:id", sightingHandler.Delete)
	review.POST("/:id/restore", sightingHandler.Restore)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/ingest", ingestHandler.Ingest)
	admin.POST("/ingest/poll", ingestHandler.Poll)
	admin.GET("/stats", metricsHandler.Stats)

	return r
}
