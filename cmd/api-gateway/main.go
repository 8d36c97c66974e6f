package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/result-distribution-api/api/swagger"
	"github.com/noah-isme/result-distribution-api/internal/handler"
	"github.com/noah-isme/result-distribution-api/internal/repository"
	"github.com/noah-isme/result-distribution-api/internal/service"
	"github.com/noah-isme/result-distribution-api/pkg/cache"
	"github.com/noah-isme/result-distribution-api/pkg/config"
	"github.com/noah-isme/result-distribution-api/pkg/database"
	"github.com/noah-isme/result-distribution-api/pkg/jobs"
	"github.com/noah-isme/result-distribution-api/pkg/limiter"
	"github.com/noah-isme/result-distribution-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/result-distribution-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/result-distribution-api/pkg/middleware/requestid"
	"github.com/noah-isme/result-distribution-api/pkg/storage"
)

// @title Result Distribution API
// @version 1.0.0
// @description Student roster import and exam center allocation
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const (
	shutdownTimeout = 15 * time.Second
	sessionSweep    = time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	var redisCache *repository.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer client.Close()
			redisCache = repository.NewCacheRepository(client)
			cacheRepo = redisCache
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	audits := repository.NewAuditRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	colleges := repository.NewCollegeRepository(db)
	students := repository.NewStudentRepository(db)
	centers := repository.NewExamCenterRepository(db)
	imports := repository.NewImportRepository(db)

	centersCache := service.NewCacheService(cacheRepo, metrics, cfg.Cache.CentersTTL, logr, cacheRepo != nil)
	catalogCache := service.NewCacheService(cacheRepo, metrics, cfg.Cache.CatalogTTL, logr, cacheRepo != nil)

	authSvc := service.NewAuthService(users, sessions, audits, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		SessionTTL:        cfg.JWT.SessionTTL,
		Issuer:            cfg.JWT.Issuer,
	})

	uploads := limiter.New(cfg.Imports.MaxConcurrent, cfg.Imports.MaxWait)
	importSvc := service.NewStudentImportService(service.StudentImportDeps{
		Students:   students,
		Catalog:    catalogRepo,
		Colleges:   colleges,
		Operations: imports,
		Audit:      audits,
		Slots:      uploads,
		Metrics:    metrics,
	}, validate, logr)

	ledger := service.NewCapacityLedger(centers, centersCache, audits, metrics, validate, logr, cfg.Cache.CentersTTL)
	declarations := service.NewCenterDeclarationService(ledger, catalogRepo, colleges, validate, logr)

	sheetStore, err := storage.NewLocalStorage(cfg.Sheets.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare sheet storage", zap.Error(err))
	}
	sheets := service.NewAssignmentSheetService(students, sheetStore, logr)
	sheetQueue := jobs.NewQueue("assignment-sheets", sheets.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Sheets.Workers,
		MaxRetries: cfg.Sheets.Retries,
		Logger:     logr,
	})
	sheetQueue.Start(context.Background())
	sheets.UseQueue(sheetQueue)

	assignments := service.NewCenterAssignmentService(students, ledger, sheets, audits, metrics, logr)
	collegeSvc := service.NewCollegeService(colleges, audits, logr, cfg.Centers.NearbyRadiusKm)
	catalogSvc := service.NewCatalogService(catalogRepo, catalogCache, cfg.Cache.CatalogTTL, logr)

	checks := map[string]handler.Pinger{"postgres": db}
	if redisCache != nil {
		checks["redis"] = handler.PingFunc(redisCache.Ping)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	registerRoutes(r, cfg, routeDeps{
		auth:        authSvc,
		authHandler: handler.NewAuthHandler(authSvc),
		imports:     handler.NewImportHandler(importSvc, cfg.Imports.MaxFileSizeBytes),
		centers:     handler.NewCenterHandler(ledger, declarations, cfg.Imports.MaxFileSizeBytes),
		assignments: handler.NewAssignmentHandler(assignments, sheets),
		colleges:    handler.NewCollegeHandler(collegeSvc, cfg.Imports.MaxFileSizeBytes),
		catalog:     handler.NewCatalogHandler(catalogSvc),
		metrics:     handler.NewMetricsHandler(metrics, checks),
		metricsSvc:  metrics,
	})

	go sweepSessions(ctx, sessions, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown failed", zap.Error(err))
	}
	if err := uploads.WaitForDrain(shutdownCtx); err != nil {
		logr.Warn("uploads still running at shutdown", zap.Error(err))
	}
	sheetQueue.Stop()
}

type sessionSweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

func sweepSessions(ctx context.Context, sessions sessionSweeper, logr *zap.Logger) {
	ticker := time.NewTicker(sessionSweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				logr.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logr.Info("expired sessions removed", zap.Int64("count", removed))
			}
		}
	}
}
