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

	_ "github.com/atlas-tutoring/portal-api/api/swagger"
	"github.com/atlas-tutoring/portal-api/internal/handler"
	"github.com/atlas-tutoring/portal-api/internal/middleware"
	"github.com/atlas-tutoring/portal-api/internal/models"
	"github.com/atlas-tutoring/portal-api/internal/repository"
	"github.com/atlas-tutoring/portal-api/internal/service"
	"github.com/atlas-tutoring/portal-api/pkg/cache"
	"github.com/atlas-tutoring/portal-api/pkg/config"
	"github.com/atlas-tutoring/portal-api/pkg/database"
	"github.com/atlas-tutoring/portal-api/pkg/jobs"
	"github.com/atlas-tutoring/portal-api/pkg/logger"
	corsmiddleware "github.com/atlas-tutoring/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/atlas-tutoring/portal-api/pkg/middleware/requestid"
	"github.com/atlas-tutoring/portal-api/pkg/storage"
)

// @title Tutoring Portal API
// @version 1.0.0
// @description Recurring group class scheduling, attendance and materials
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, calendar cache disabled", "error", err)
		redisClient = nil
	}

	classRepo := repository.NewGroupClassRepository(db)
	exceptionRepo := repository.NewSessionExceptionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	fileRepo := repository.NewClassFileRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	notifierSvc := service.NewNotifierService(enrollmentRepo, service.NewLogSender(logr), metricsSvc, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, cfg.Notifications.Enabled, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifierSvc.Start(ctx)
	defer notifierSvc.Stop()

	useCache := cfg.Calendar.CacheEnabled && redisClient != nil
	sessionSvc := service.NewSessionService(classRepo, exceptionRepo, cacheRepo, notifierSvc, metricsSvc, cfg.Calendar.CacheTTL, useCache, logr)
	classSvc := service.NewClassService(classRepo, auditRepo, cacheRepo, notifierSvc, nil, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, classRepo, sessionSvc, auditRepo, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, classRepo, nil, logr)

	store, err := storage.NewLocalStorage(cfg.Materials.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init material storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Materials.SignedURLSecret, cfg.Materials.SignedURLTTL)
	materialSvc := service.NewMaterialService(fileRepo, classRepo, store, signer, auditRepo, cfg.Materials.MaxFileSizeBytes, cfg.Materials.AllowedMIMEs, logr)

	authSvc := service.NewAuthService(cfg.JWT.Secret, logr)

	classHandler := handler.NewClassHandler(classSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	materialHandler := handler.NewMaterialHandler(materialSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Download streaming authenticates via the signed token itself.
	r.GET(cfg.APIPrefix+"/downloads", materialHandler.Download)

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTutor)
	everyone := middleware.RequireRoles(models.RoleAdmin, models.RoleTutor, models.RoleParent)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	classes := api.Group("/classes")
	{
		classes.GET("", staff, classHandler.List)
		classes.POST("", admin, classHandler.Create)
		classes.GET("/:id", everyone, classHandler.Get)
		classes.PUT("/:id", admin, classHandler.Update)
		classes.DELETE("/:id", admin, classHandler.Delete)
		classes.PUT("/:id/schedule", admin, classHandler.UpdateSchedule)
		classes.GET("/:id/audit", admin, classHandler.AuditTrail)

		classes.GET("/:id/sessions", everyone, sessionHandler.Calendar)
		classes.GET("/:id/weeks", everyone, sessionHandler.Weeks)
		classes.GET("/:id/sessions/:date", everyone, sessionHandler.Get)
		classes.PATCH("/:id/sessions/:date", admin,
			middleware.Audit(auditRepo, models.AuditActionExceptionUpsert, "group_class"),
			sessionHandler.UpsertException)
		classes.GET("/:id/sessions/:date/exception", admin, sessionHandler.GetException)
		classes.GET("/:id/exceptions/orphaned", admin, sessionHandler.OrphanedExceptions)

		classes.GET("/:id/sessions/:date/attendance", staff, attendanceHandler.Get)
		classes.PUT("/:id/sessions/:date/attendance", staff, attendanceHandler.Save)
		classes.GET("/:id/sessions/:date/attendance/export", staff, attendanceHandler.Export)
		classes.GET("/:id/attendance/:enrollmentId", staff, attendanceHandler.StudentSummary)

		classes.GET("/:id/enrollments", staff, enrollmentHandler.List)
		classes.POST("/:id/enrollments", admin, enrollmentHandler.Create)

		classes.GET("/:id/materials", everyone, materialHandler.List)
		classes.POST("/:id/materials", staff, materialHandler.Upload)
	}

	api.PATCH("/enrollments/:id/status", admin,
		middleware.Audit(auditRepo, models.AuditActionEnrollmentStatus, "enrollment"),
		enrollmentHandler.UpdateStatus)

	materials := api.Group("/materials")
	{
		materials.GET("/:id/download", everyone, materialHandler.GrantDownload)
		materials.PATCH("/:id/current", staff, materialHandler.MarkCurrent)
		materials.DELETE("/:id", staff, materialHandler.Delete)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
