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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/fleetops/tripshare-api/api/swagger"
	"github.com/fleetops/tripshare-api/internal/handler"
	"github.com/fleetops/tripshare-api/internal/middleware"
	"github.com/fleetops/tripshare-api/internal/models"
	"github.com/fleetops/tripshare-api/internal/repository"
	"github.com/fleetops/tripshare-api/internal/service"
	"github.com/fleetops/tripshare-api/pkg/cache"
	"github.com/fleetops/tripshare-api/pkg/config"
	"github.com/fleetops/tripshare-api/pkg/database"
	"github.com/fleetops/tripshare-api/pkg/logger"
	corsmiddleware "github.com/fleetops/tripshare-api/pkg/middleware/cors"
	reqidmiddleware "github.com/fleetops/tripshare-api/pkg/middleware/requestid"
)

// @title TripShare API
// @version 1.0.0
// @description Trip lifecycle, manager confirmation and shared-vehicle batching
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis only backs the badge cache; the API runs without it.
		logr.Warn("redis unavailable, badge cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tripRepo := repository.NewTripRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	vehicleRepo := repository.NewVehicleRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)

	metricsSvc := service.NewMetricsService()

	dispatcher := service.NewNotifyDispatcher(&service.LogNotifier{Logger: logr}, cfg.Notifications, logr)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	tokenSvc := service.NewTokenService(tokenRepo, logr)

	approvalOpts := []service.ApprovalServiceOption{service.WithApprovalMetrics(metricsSvc)}
	if redisClient != nil {
		approvalOpts = append(approvalOpts, service.WithBadgeCache(repository.NewCacheRepository(redisClient)))
	}
	approvalSvc := service.NewApprovalService(
		tripRepo, auditRepo, tokenSvc, directoryRepo, dispatcher, vehicleRepo,
		cfg.Approval, logr, approvalOpts...)

	batchingSvc := service.NewBatchingService(
		tripRepo, groupRepo, auditRepo, dispatcher,
		cfg.Batching, cfg.VehicleRates, logr).WithBatchingMetrics(metricsSvc)

	go runExpirySweep(ctx, approvalSvc, cfg.Approval.SweepInterval, logr)
	if cfg.Batching.Enabled {
		go runBatchingSweep(ctx, batchingSvc, cfg.Batching.SweepInterval, logr)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg, approvalSvc, batchingSvc)

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
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func registerRoutes(r *gin.Engine, cfg *config.Config, approvalSvc *service.ApprovalService, batchingSvc *service.BatchingService) {
	tripHandler := handler.NewTripHandler(approvalSvc)
	confirmationHandler := handler.NewConfirmationHandler(approvalSvc)
	batchHandler := handler.NewBatchHandler(batchingSvc)
	vehicleHandler := handler.NewVehicleHandler(approvalSvc)

	verifier := middleware.NewTokenVerifier(cfg.JWT.Secret)

	api := r.Group(cfg.APIPrefix)

	// Token possession is the credential here; the link arrives by email.
	api.POST("/confirmations/:token", confirmationHandler.Redeem)

	authed := api.Group("", middleware.JWT(verifier))

	trips := authed.Group("/trips")
	trips.POST("", tripHandler.Submit)
	trips.GET("", tripHandler.List)
	trips.GET("/pending/exceptions",
		middleware.RequireRoles(models.RoleAdmin, models.RoleManager), tripHandler.Exceptions)
	trips.GET("/pending/count",
		middleware.RequireRoles(models.RoleAdmin, models.RoleManager), tripHandler.PendingCount)
	trips.GET("/:id", tripHandler.Get)
	trips.GET("/:id/audit", tripHandler.Audit)
	trips.POST("/:id/override",
		middleware.RequireRoles(models.RoleAdmin), tripHandler.Override)
	trips.POST("/:id/vehicle",
		middleware.RequireRoles(models.RoleAdmin), tripHandler.AssignVehicle)

	optimization := authed.Group("/optimization", middleware.RequireRoles(models.RoleAdmin))
	optimization.POST("/sweep", batchHandler.Sweep)
	optimization.GET("/groups", batchHandler.List)
	optimization.GET("/groups/:id", batchHandler.Get)
	optimization.POST("/groups/:id/resolve", batchHandler.Resolve)

	authed.GET("/vehicles/available",
		middleware.RequireRoles(models.RoleAdmin, models.RoleManager), vehicleHandler.Available)
}

func runExpirySweep(ctx context.Context, svc *service.ApprovalService, interval time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := svc.ExpireOverdue(ctx)
			if err != nil {
				logr.Error("expiry sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 {
				logr.Info("expired overdue pending trips", zap.Int("count", expired))
			}
		}
	}
}

func runBatchingSweep(ctx context.Context, svc *service.BatchingService, interval time.Duration, logr *zap.Logger) {
	actor := models.Actor{Email: "system@tripshare", Name: "batching sweep", Role: "SYSTEM"}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := svc.RunSweep(ctx, actor)
			if err != nil {
				logr.Error("batching sweep failed", zap.Error(err))
				continue
			}
			if result.GroupsCreated > 0 || result.MarkedSolo > 0 {
				logr.Info("batching sweep completed",
					zap.Int("candidates", result.CandidatesSeen),
					zap.Int("groups_created", result.GroupsCreated),
					zap.Int("marked_solo", result.MarkedSolo))
			}
		}
	}
}
