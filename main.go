package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"med13-pipeline/config"
	"med13-pipeline/models"
	"med13-pipeline/providers"
	"med13-pipeline/providers/europepmc"
	"med13-pipeline/providers/pubmed"
	"med13-pipeline/repository"
	"med13-pipeline/repository/gormrepo"
	"med13-pipeline/services"
	"med13-pipeline/storage"
)

const defaultSourceName = "pubmed-med13"

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
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

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to pipeline database.")

	logging.Info("Running database auto-migration...")
	if err := gormrepo.AutoMigrate(db); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Repositories
	sources := gormrepo.NewDataSourceRepo(db, logging)
	jobs := gormrepo.NewIngestionJobRepo(db, logging)
	publications := gormrepo.NewPublicationRepo(db, logging)
	queue := gormrepo.NewExtractionQueueRepo(db, logging)
	extractions := gormrepo.NewPublicationExtractionRepo(db, logging)

	seedDefaultSource(sources, cfg, logging)

	// Storage ist optional; ein nil-*S3Coordinator darf nicht im Interface landen.
	var store storage.Coordinator
	s3Coordinator, err := storage.NewS3Coordinator(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	if s3Coordinator != nil {
		store = s3Coordinator
		logging.Info("Storage archiving enabled", zap.String("bucket", cfg.S3Bucket))
	}

	gateway := newGateway(cfg, logging)
	processor, err := services.NewProcessor(cfg.ExtractionProcessor, cfg.ExtractionGeneSymbols)
	if err != nil {
		logging.Fatal("Invalid extraction processor", zap.Error(err))
	}

	ingestion := services.NewPubMedIngestionService(gateway, publications, store, logging)
	ingestion.StorageUserID = cfg.S3StorageUserID
	queueService := services.NewExtractionQueueService(queue, cfg.ExtractionVersion, logging)
	runner := services.NewExtractionRunnerService(queue, publications, extractions, processor, store, cfg.ExtractionBatchSize, logging)
	runner.StorageUserID = cfg.S3StorageUserID
	pipeline := services.NewPipelineService(sources, jobs, ingestion, queueService, runner, logging)

	router := newRouter(&app{
		cfg:          cfg,
		log:          logging,
		sources:      sources,
		jobs:         jobs,
		publications: publications,
		extractions:  extractions,
		queue:        queue,
		pipeline:     pipeline,
		runner:       runner,
	})

	cronScheduler := cron.New()
	if _, err := cronScheduler.AddFunc(cfg.ExtractionCronSchedule, func() {
		summary, err := runner.RunPending(context.Background(), services.RunPendingOptions{})
		if err != nil {
			logging.Error("Scheduled extraction batch failed", zap.Error(err))
			return
		}
		if summary.Processed > 0 {
			logging.Info("Scheduled extraction batch completed",
				zap.Int("processed", summary.Processed),
				zap.Int("failed", summary.Failed))
		}
	}); err != nil {
		logging.Fatal("Invalid EXTRACTION_CRON_SCHEDULE", zap.Error(err))
	}
	if _, err := cronScheduler.AddFunc(cfg.IngestionCronSchedule, func() {
		logging.Info("Running scheduled ingestion for all active sources...")
		ran, err := pipeline.RunAllActive(context.Background(), models.IngestionTriggerScheduled)
		if err != nil {
			logging.Error("Scheduled ingestion failed", zap.Error(err))
			return
		}
		logging.Info("Scheduled ingestion completed", zap.Int("jobs", len(ran)))
	}); err != nil {
		logging.Fatal("Invalid INGESTION_CRON_SCHEDULE", zap.Error(err))
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func newGateway(cfg *config.Config, logging *zap.Logger) providers.Gateway {
	switch cfg.PubMedGateway {
	case "europepmc":
		logging.Info("Using Europe PMC as PubMed gateway")
		return europepmc.NewFetcher(cfg, logging)
	case "", "eutils":
		return pubmed.NewFetcher(cfg, logging)
	default:
		logging.Warn("Unknown PUBMED_GATEWAY, falling back to eutils", zap.String("gateway", cfg.PubMedGateway))
		return pubmed.NewFetcher(cfg, logging)
	}
}

func seedDefaultSource(sources repository.DataSourceRepository, cfg *config.Config, logger *zap.Logger) {
	if cfg.DefaultSourceQuery == "" {
		return
	}
	ctx := context.Background()
	existing, err := sources.List(ctx)
	if err != nil || len(existing) > 0 {
		return
	}
	src := &models.DataSource{
		Name:       defaultSourceName,
		SourceType: models.SourceTypePubMed,
		Query:      cfg.DefaultSourceQuery,
		MaxResults: cfg.PubMedMaxResults,
		Active:     true,
	}
	if err := sources.Create(ctx, src); err != nil {
		logger.Warn("Failed to seed default data source", zap.Error(err))
	} else {
		logger.Info("Default data source seeded.", zap.String("source_id", src.ID.String()))
	}
}
