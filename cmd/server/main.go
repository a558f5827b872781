package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/assessment-session-engine/internal/cache"
	"github.com/SAP-F-2025/assessment-session-engine/internal/config"
	"github.com/SAP-F-2025/assessment-session-engine/internal/grading"
	"github.com/SAP-F-2025/assessment-session-engine/internal/handlers"
	"github.com/SAP-F-2025/assessment-session-engine/internal/metrics"
	"github.com/SAP-F-2025/assessment-session-engine/internal/registry"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories/postgres"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories/xlsx"
	"github.com/SAP-F-2025/assessment-session-engine/internal/services"
	"github.com/SAP-F-2025/assessment-session-engine/internal/session"
	"github.com/SAP-F-2025/assessment-session-engine/internal/utils"
	"github.com/SAP-F-2025/assessment-session-engine/internal/validator"
	"github.com/SAP-F-2025/assessment-session-engine/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Starting assessment session engine",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"source", cfg.Source.Kind,
		"grader", cfg.Grading.Mode)

	// ─── Registry & Validation ─────────────────────────────────────────
	policy, err := registry.ParseNoKeyPolicy(cfg.Grading.NoKeyPolicy)
	if err != nil {
		return err
	}
	reg := registry.New(registry.WithNoKeyPolicy(policy))
	v := validator.New(reg)

	// ─── Storage ───────────────────────────────────────────────────────
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return err
	}
	if err := postgres.AutoMigrate(db); err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	rdb, err := pkg.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()
	cacheService := cache.NewRedisCache(rdb, logger)

	// ─── Assessment Source ─────────────────────────────────────────────
	var (
		source      session.AssessmentSource
		matcher     grading.TextMatcher
		definitions repositories.AssessmentRepository
	)
	switch cfg.Source.Kind {
	case config.SourceXLSX:
		wb, err := xlsx.OpenWorkbookSource(cfg.Source.WorkbookPath)
		if err != nil {
			return err
		}
		for _, a := range wb.Assessments() {
			if err := v.ValidateAssessment(a); err != nil {
				logger.Warn("Workbook assessment fails validation", "assessment_id", a.ID, "error", err)
			}
		}
		source = wb
		if keywords := wb.Keywords(); len(keywords) > 0 {
			matcher = grading.KeywordMatcher{Keywords: keywords}
		}
		logger.Info("Loaded assessment workbook", "path", cfg.Source.WorkbookPath, "assessments", len(wb.Assessments()))
	default:
		definitions = postgres.NewAssessmentPostgreSQL(db)
		source = definitions
	}
	cachedSource := cache.NewCachedAssessmentSource(source, cacheService, cfg.Source.CacheTTL, logger)
	source = cachedSource

	// Published definitions are cached before the first request.
	if definitions != nil {
		published, err := definitions.ListPublished(ctx)
		if err != nil {
			logger.Warn("Cache prewarm failed", "error", err)
		} else {
			logger.Info("Assessment cache prewarmed", "cached", cachedSource.Prewarm(ctx, published))
		}
	}

	// ─── Grading ───────────────────────────────────────────────────────
	var grader services.Grader
	switch cfg.Grading.Mode {
	case config.GraderHTTP:
		grader = grading.NewHTTPClient(grading.HTTPClientConfig{
			BaseURL: cfg.Grading.URL,
			APIKey:  cfg.Grading.APIKey,
			Timeout: cfg.Grading.Timeout,
		}, logger)
	default:
		grader = grading.NewLocalGrader(source, reg, matcher, logger)
	}
	submitter := services.NewSubmissionPipeline(reg, grader, logger)

	// ─── Events ────────────────────────────────────────────────────────
	publisher, err := cfg.Events.CreateEventPublisher(logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// ─── Session Service ───────────────────────────────────────────────
	var attempts repositories.AttemptRepository = postgres.NewAttemptPostgreSQL(db)
	m := metrics.New(nil)

	serviceConfig := services.SessionServiceConfig{
		Registry:          reg,
		Source:            source,
		Submitter:         submitter,
		Validator:         v,
		Scheduler:         session.NewTickerScheduler(),
		TickInterval:      cfg.Session.TickInterval,
		Publisher:         publisher,
		Attempts:          attempts,
		Metrics:           m,
		Logger:            logger,
		SideEffectTimeout: cfg.Session.SideEffectTimeout,
		IdleTTL:           cfg.Session.IdleTTL,
		CompletedTTL:      cfg.Session.CompletedTTL,
		SweepInterval:     cfg.Session.SweepInterval,
	}
	if cfg.Session.AutosaveEnabled {
		store := cache.NewAnswerSnapshotStore(cacheService, cfg.Session.AutosaveTTL)
		// Sessions live in memory; autosaves of a previous process have no owner.
		if err := store.Purge(ctx); err != nil {
			logger.Warn("Failed to purge stale autosaves", "error", err)
		}
		serviceConfig.Autosave = store
	}
	sessionService := services.NewSessionService(serviceConfig)
	defer sessionService.Shutdown()

	// ─── HTTP ──────────────────────────────────────────────────────────
	routerConfig := handlers.RouterConfig{
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		RateLimit:       cfg.HTTP.RateLimit,
		RateLimitWindow: cfg.HTTP.RateLimitWindow,
		MaxUploadMB:     cfg.HTTP.MaxUploadMB,
		Metrics:         m,
	}
	if cfg.Auth.Enabled {
		routerConfig.TokenParser = handlers.NewCasdoorTokenParser(
			cfg.Auth.Endpoint,
			cfg.Auth.ClientID,
			cfg.Auth.ClientSecret,
			cfg.Auth.Certificate,
			cfg.Auth.OrganizationName,
			cfg.Auth.ApplicationName,
		)
	} else {
		logger.Warn("Authentication disabled, trusting the " + handlers.UserIDHeader + " header")
	}

	router := handlers.NewHandlerManager(sessionService, routerConfig, utils.NewSlogLogger(logger)).NewRouter(ctx)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
	return nil
}
