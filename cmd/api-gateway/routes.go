package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/result-distribution-api/internal/handler"
	"github.com/noah-isme/result-distribution-api/internal/middleware"
	"github.com/noah-isme/result-distribution-api/internal/models"
	"github.com/noah-isme/result-distribution-api/internal/service"
	"github.com/noah-isme/result-distribution-api/pkg/config"
)

type routeDeps struct {
	auth        middleware.SessionAuthenticator
	authHandler *handler.AuthHandler
	imports     *handler.ImportHandler
	centers     *handler.CenterHandler
	assignments *handler.AssignmentHandler
	colleges    *handler.CollegeHandler
	catalog     *handler.CatalogHandler
	metrics     *handler.MetricsHandler
	metricsSvc  *service.MetricsService
}

func registerRoutes(r *gin.Engine, cfg *config.Config, deps routeDeps) {
	r.Use(middleware.Metrics(deps.metricsSvc, "/health", "/ready", "/metrics"))

	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Ready)
	r.GET("/metrics", deps.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", deps.authHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.Session(deps.auth))
	secured.POST("/auth/logout", deps.authHandler.Logout)
	secured.GET("/auth/me", deps.authHandler.Me)
	secured.GET("/catalog", deps.catalog.Resolve)

	admin := secured.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/metrics/summary", deps.metrics.Snapshot)

	admin.POST("/students/import", deps.imports.Import)
	admin.POST("/students/bulk", deps.imports.Bulk)
	admin.GET("/imports/:id", deps.imports.GetOperation)

	admin.PUT("/centers/capacity", deps.centers.DeclareCapacity)
	admin.POST("/centers/capacity/bulk", deps.centers.DeclareBulk)
	admin.GET("/centers", deps.centers.List)
	admin.POST("/centers/allocate", deps.centers.Allocate)
	admin.POST("/centers/release", deps.centers.Release)

	admin.POST("/assignments", deps.assignments.Resolve)
	admin.DELETE("/assignments", deps.assignments.Unassign)
	admin.GET("/assignments/sheet", deps.assignments.Sheet)

	admin.POST("/colleges/import", deps.colleges.Import)
	admin.GET("/colleges/:id/nearby-centers", deps.colleges.NearbyCenters)
}
