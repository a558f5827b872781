package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/SAP-F-2025/assessment-session-engine/internal/cache"
	"github.com/SAP-F-2025/assessment-session-engine/internal/config"
	"github.com/SAP-F-2025/assessment-session-engine/internal/registry"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories/postgres"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories/xlsx"
	"github.com/SAP-F-2025/assessment-session-engine/internal/utils"
	"github.com/SAP-F-2025/assessment-session-engine/internal/validator"
	"github.com/SAP-F-2025/assessment-session-engine/pkg"
)

// import-workbook loads assessment definitions from an Excel workbook into
// Postgres and drops their cached copies.
func main() {
	path := flag.String("file", "", "path to the assessment workbook")
	dryRun := flag.Bool("dry-run", false, "validate the workbook without writing")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := utils.NewLogger(cfg.Environment, cfg.LogLevel)

	if *path == "" {
		*path = cfg.Source.WorkbookPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	wb, err := xlsx.OpenWorkbookSource(*path)
	if err != nil {
		logger.Error("Failed to read workbook", "path", *path, "error", err)
		os.Exit(1)
	}

	policy, err := registry.ParseNoKeyPolicy(cfg.Grading.NoKeyPolicy)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	v := validator.New(registry.New(registry.WithNoKeyPolicy(policy)))

	assessments := wb.Assessments()
	invalid := 0
	for _, a := range assessments {
		if err := v.ValidateAssessment(a); err != nil {
			logger.Error("Assessment rejected", "assessment_id", a.ID, "error", err)
			invalid++
		}
	}
	if invalid > 0 {
		logger.Error("Workbook has invalid assessments, nothing imported", "invalid", invalid, "total", len(assessments))
		os.Exit(1)
	}
	if *dryRun {
		logger.Info("Workbook is valid", "assessments", len(assessments))
		return
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	if err := postgres.AutoMigrate(db); err != nil {
		logger.Error("Migration failed", "error", err)
		os.Exit(1)
	}
	repo := postgres.NewAssessmentPostgreSQL(db)

	var cached *cache.CachedAssessmentSource
	if rdb, err := pkg.NewRedisClient(ctx, cfg); err != nil {
		logger.Warn("Redis unavailable, cached definitions expire on their own", "error", err)
	} else {
		defer rdb.Close()
		cached = cache.NewCachedAssessmentSource(repo, cache.NewRedisCache(rdb, logger), cfg.Source.CacheTTL, logger)
	}

	for _, a := range assessments {
		if err := repo.Save(ctx, a); err != nil {
			logger.Error("Failed to save assessment", "assessment_id", a.ID, "error", err)
			os.Exit(1)
		}
		if cached != nil {
			if err := cached.Invalidate(ctx, a.ID); err != nil {
				logger.Warn("Failed to invalidate cached assessment", "assessment_id", a.ID, "error", err)
			}
		}
		logger.Info("Assessment imported", "assessment_id", a.ID, "questions", len(a.Questions), "status", a.Status)
	}

	logger.Info("Import complete", "assessments", len(assessments))
}
