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

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/camatch/camatch-api/api/swagger"
	"github.com/camatch/camatch-api/internal/handler"
	"github.com/camatch/camatch-api/internal/repository"
	"github.com/camatch/camatch-api/internal/service"
	"github.com/camatch/camatch-api/pkg/cache"
	"github.com/camatch/camatch-api/pkg/config"
	"github.com/camatch/camatch-api/pkg/database"
	"github.com/camatch/camatch-api/pkg/jobs"
	"github.com/camatch/camatch-api/pkg/logger"
	"github.com/camatch/camatch-api/pkg/mailer"
	"github.com/camatch/camatch-api/pkg/storage"
	"github.com/camatch/camatch-api/pkg/textract"
)

// @title CA Match API
// @version 1.0.0
// @description Course assistant matching: candidate profiles, ranked preferences, deterministic matching runs and roster management
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	documentStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	preferenceRepo := repository.NewPreferenceRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	exportRepo := repository.NewExportJobRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	metricsSvc := service.NewMetricsService()
	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metricsSvc, 10*time.Minute, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, 0, logr, false)
	}

	authSvc := service.NewAuthService(userRepo, studentRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "camatch-api",
	})

	skillMatcher := service.NewSkillMatcher(logr)
	scorer := service.NewCandidateScorer(skillMatcher, logr)
	engine := service.NewMatchingEngine(scorer, logr)

	studentSvc := service.NewStudentService(studentRepo, preferenceRepo, courseRepo, validate, logr)
	preferenceSvc := service.NewPreferenceService(preferenceRepo, courseRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, preferenceRepo, assignmentRepo, studentRepo, feedbackRepo, scorer, userRepo, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, courseRepo, studentRepo, userRepo, validate, logr)
	matchingSvc := service.NewMatchingService(db, courseRepo, preferenceRepo, studentRepo, assignmentRepo, feedbackRepo, userRepo, engine, cacheSvc, metricsSvc, validate, logr)
	feedbackSvc := service.NewFeedbackService(feedbackRepo, assignmentRepo, userRepo, cacheSvc, validate, logr, cfg.Feedback.SummaryCacheTTL)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, cacheSvc, metricsSvc, logr, cfg.Analytics.CacheTTL)
	userSvc := service.NewUserService(userRepo, studentRepo, validate, logr)

	documentSigner := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)
	documentSvc := service.NewDocumentService(
		studentRepo,
		documentStore,
		textract.New(textract.Config{Endpoint: cfg.Textract.Endpoint, APIKey: cfg.Textract.APIKey, Timeout: cfg.Textract.Timeout}),
		skillMatcher,
		documentSigner,
		userRepo,
		logr,
		service.DocumentConfig{MaxUploadSize: cfg.Documents.MaxFileSizeBytes, APIPrefix: cfg.APIPrefix},
	)

	exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(exportRepo, assignmentRepo, preferenceRepo, exportStore, exportSigner, validate, logr, service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
		MaxRetries:      cfg.Exports.WorkerRetries,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exportWorker := service.NewExportWorker(exportRepo, exportSvc, cfg.Exports.WorkerRetries, logr)
	exportQueue := jobs.NewQueue("exports", exportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	exportQueue.Start(rootCtx)
	defer exportQueue.Stop()
	exportSvc.SetDispatcher(exportQueue)

	extractionQueue := jobs.NewQueue("document_extraction", documentSvc.HandleExtraction, jobs.QueueConfig{
		Workers: 2,
		Logger:  logr,
	})
	extractionQueue.Start(rootCtx)
	defer extractionQueue.Stop()
	documentSvc.SetDispatcher(extractionQueue)

	mailWorker := service.NewMailWorker(mailer.NewLogMailer(cfg.Mail.FromAddress, cfg.Mail.FromName, logr), logr)
	mailQueue := jobs.NewQueue("mail_delivery", mailWorker.Handle, jobs.QueueConfig{
		Workers: 1,
		Logger:  logr,
	})
	mailQueue.Start(rootCtx)
	defer mailQueue.Stop()

	communicationSvc := service.NewCommunicationService(assignmentRepo, mailQueue, validate, logr)

	metricsSvc.RegisterQueueDepth("exports", func() float64 { return float64(exportQueue.Depth()) })
	metricsSvc.RegisterQueueDepth("document_extraction", func() float64 { return float64(extractionQueue.Depth()) })
	metricsSvc.RegisterQueueDepth("mail_delivery", func() float64 { return float64(mailQueue.Depth()) })

	exportSvc.RecoverPendingJobs(rootCtx)
	exportSvc.StartCleanup(rootCtx)

	router := handler.NewRouter(handler.RouterDeps{
		Config:      cfg,
		Logger:      logr,
		AuthService: authSvc,
		Metrics:     metricsSvc,
		AuditRepo:   userRepo,

		Auth:       handler.NewAuthHandler(authSvc),
		Students:   handler.NewStudentHandler(studentSvc, preferenceSvc, documentSvc),
		Professors: handler.NewProfessorHandler(authSvc, courseSvc, assignmentSvc, preferenceSvc, studentSvc),
		Admin:      handler.NewAdminHandler(courseSvc, matchingSvc, assignmentSvc, communicationSvc),
		Users:      handler.NewUserHandler(userSvc),
		Exports:    handler.NewExportHandler(exportSvc),
		Feedback:   handler.NewFeedbackHandler(feedbackSvc),
		Analytics:  handler.NewAnalyticsHandler(analyticsSvc),
		Health:     handler.NewHealthHandler(db, redisClient),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped")
}
