package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/crams-api/api/swagger"
	"github.com/noah-isme/crams-api/internal/handler"
	"github.com/noah-isme/crams-api/internal/repository"
	"github.com/noah-isme/crams-api/internal/router"
	"github.com/noah-isme/crams-api/internal/service"
	"github.com/noah-isme/crams-api/migrations"
	"github.com/noah-isme/crams-api/pkg/cache"
	"github.com/noah-isme/crams-api/pkg/config"
	"github.com/noah-isme/crams-api/pkg/database"
	"github.com/noah-isme/crams-api/pkg/jobs"
	"github.com/noah-isme/crams-api/pkg/logger"
)

// @title CRAMS API
// @version 1.0.0
// @description Course registration and advising: submission, advisor review, catalog and notifications.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Migrations.AutoMigrate {
		if err := migrations.Up(db); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
		logr.Info("database schema up to date")
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled && redisClient != nil)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, userRepo, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, metrics, validate, logr)
	registrationSvc := service.NewRegistrationService(registrationRepo, courseRepo, userRepo, userRepo, metrics, validate, logr)
	reviewSvc := service.NewReviewService(registrationRepo, courseRepo, userRepo, userRepo, notificationSvc, metrics, logr)
	exportSvc := service.NewExportService(registrationSvc, logr)

	queue := jobs.NewQueue("notifications", notificationSvc.Deliver, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	notificationSvc.UseQueue(queue)

	checks := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = cacheRepo.Ping
	}

	engine := router.New(cfg, router.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Courses:       handler.NewCourseHandler(courseSvc),
		Registrations: handler.NewRegistrationHandler(registrationSvc, exportSvc),
		Review:        handler.NewReviewHandler(reviewSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Metrics:       handler.NewMetricsHandler(metrics.Handler(), checks),
	}, router.Dependencies{
		Tokens:   authSvc,
		Observer: metrics,
		Audit:    userRepo,
		Logger:   logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
