// Command runner verarbeitet einen einzelnen Batch der Extraktions-Queue und beendet sich.
// Gedacht für externe Scheduler wie Kubernetes CronJobs.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"med13-pipeline/config"
	"med13-pipeline/repository/gormrepo"
	"med13-pipeline/services"
	"med13-pipeline/storage"
)

type RunnerConfig struct {
	Limit          int    `envconfig:"RUNNER_LIMIT"`
	SourceID       string `envconfig:"RUNNER_SOURCE_ID"`
	IngestionJobID string `envconfig:"RUNNER_JOB_ID"`
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}
	var rc RunnerConfig
	if err := envconfig.Process("", &rc); err != nil {
		logging.Fatal("Runner config load error", zap.Error(err))
	}
	opts, err := rc.options()
	if err != nil {
		logging.Fatal("Invalid runner filter", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := gormrepo.AutoMigrate(db); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	var store storage.Coordinator
	s3Coordinator, err := storage.NewS3Coordinator(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	if s3Coordinator != nil {
		store = s3Coordinator
	}

	processor, err := services.NewProcessor(cfg.ExtractionProcessor, cfg.ExtractionGeneSymbols)
	if err != nil {
		logging.Fatal("Invalid extraction processor", zap.Error(err))
	}
	runner := services.NewExtractionRunnerService(
		gormrepo.NewExtractionQueueRepo(db, logging),
		gormrepo.NewPublicationRepo(db, logging),
		gormrepo.NewPublicationExtractionRepo(db, logging),
		processor,
		store,
		cfg.ExtractionBatchSize,
		logging,
	)
	runner.StorageUserID = cfg.S3StorageUserID

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runner.RunPending(ctx, opts)
	if err != nil {
		logging.Fatal("Extraction batch failed", zap.Error(err))
	}
	logging.Info("Extraction batch completed",
		zap.Int("processed", summary.Processed),
		zap.Int("completed", summary.Completed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
}

func (rc RunnerConfig) options() (services.RunPendingOptions, error) {
	opts := services.RunPendingOptions{Limit: rc.Limit}
	if rc.SourceID != "" {
		id, err := uuid.Parse(rc.SourceID)
		if err != nil {
			return opts, err
		}
		opts.SourceID = &id
	}
	if rc.IngestionJobID != "" {
		id, err := uuid.Parse(rc.IngestionJobID)
		if err != nil {
			return opts, err
		}
		opts.IngestionJobID = &id
	}
	return opts, nil
}
