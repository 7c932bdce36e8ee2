package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"med13-pipeline/config"
	"med13-pipeline/models"
	"med13-pipeline/repository"
	"med13-pipeline/services"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// app bündelt die Abhängigkeiten der HTTP-Handler.
type app struct {
	cfg          *config.Config
	log          *zap.Logger
	sources      repository.DataSourceRepository
	jobs         repository.IngestionJobRepository
	publications repository.PublicationRepository
	extractions  repository.PublicationExtractionRepository
	queue        repository.ExtractionQueueRepository
	pipeline     *services.PipelineService
	runner       *services.ExtractionRunnerService
}

func newRouter(a *app) *gin.Engine {
	router := gin.Default()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.Use(apiKeyAuthMiddleware(a.cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupSourceRoutes(router, a)
	setupIngestionJobRoutes(router, a)
	setupPublicationRoutes(router, a)
	setupExtractionQueueRoutes(router, a)
	return router
}

func setupSourceRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/sources")
	rg.POST("", func(c *gin.Context) {
		var req struct {
			Name       string            `json:"name" binding:"required"`
			SourceType models.SourceType `json:"source_type"`
			Query      string            `json:"query" binding:"required"`
			MaxResults int               `json:"max_results"`
			Active     *bool             `json:"active"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
			return
		}
		src := &models.DataSource{
			Name:       strings.TrimSpace(req.Name),
			SourceType: req.SourceType,
			Query:      req.Query,
			MaxResults: req.MaxResults,
			Active:     req.Active == nil || *req.Active,
		}
		if src.SourceType == "" {
			src.SourceType = models.SourceTypePubMed
		}
		if err := a.sources.Create(c.Request.Context(), src); err != nil {
			a.log.Error("Failed to create data source", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create data source"})
			return
		}
		c.JSON(http.StatusCreated, src)
	})
	rg.GET("", func(c *gin.Context) {
		sources, err := a.sources.List(c.Request.Context())
		if err != nil {
			a.log.Error("Database query for data sources failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, sources)
	})
	rg.POST("/:id/ingest", func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source id"})
			return
		}
		src, err := a.sources.Get(c.Request.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "data source not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if src.SourceType != models.SourceTypePubMed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "only pubmed sources can be ingested"})
			return
		}

		go func() {
			job, err := a.pipeline.RunSource(context.Background(), src.ID, models.IngestionTriggerManual)
			if err != nil {
				a.log.Error("Async ingestion failed", zap.String("source", src.Name), zap.Error(err))
				return
			}
			a.log.Info("Async ingestion completed", zap.String("source", src.Name), zap.String("ingestion_job_id", job.ID.String()))
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Ingestion for source " + src.Name + " triggered.", "source_id": src.ID})
	})
}

func setupIngestionJobRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/ingestion-jobs")
	rg.GET("", func(c *gin.Context) {
		sourceID, ok := optionalUUIDQuery(c, "source_id")
		if !ok {
			return
		}
		jobs, err := a.jobs.List(c.Request.Context(), sourceID, listLimit(c))
		if err != nil {
			a.log.Error("Database query for ingestion jobs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, jobs)
	})
	rg.GET("/:id", func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}
		job, err := a.jobs.Get(c.Request.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ingestion job not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, job)
	})
}

func setupPublicationRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/publications")
	rg.GET("", func(c *gin.Context) {
		offset, _ := strconv.Atoi(c.Query("offset"))
		pubs, err := a.publications.List(c.Request.Context(), listLimit(c), max(offset, 0))
		if err != nil {
			a.log.Error("Database query for publications failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, pubs)
	})
	rg.GET("/:id/extractions", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid publication id"})
			return
		}
		pub, err := a.publications.GetByID(c.Request.Context(), uint(id))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if pub == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "publication not found"})
			return
		}
		extractions, err := a.extractions.ListByPublication(c.Request.Context(), pub.ID)
		if err != nil {
			a.log.Error("Database query for extractions failed", zap.Uint("publication_id", pub.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, extractions)
	})
}

func setupExtractionQueueRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/extraction-queue")
	rg.GET("", func(c *gin.Context) {
		status := models.QueueStatus(c.Query("status"))
		switch status {
		case "", models.QueueStatusPending, models.QueueStatusProcessing, models.QueueStatusCompleted, models.QueueStatusFailed:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		sourceID, ok := optionalUUIDQuery(c, "source_id")
		if !ok {
			return
		}
		jobID, ok := optionalUUIDQuery(c, "ingestion_job_id")
		if !ok {
			return
		}
		items, err := a.queue.List(c.Request.Context(), repository.QueueListFilter{
			Status:         status,
			SourceID:       sourceID,
			IngestionJobID: jobID,
			Limit:          listLimit(c),
		})
		if err != nil {
			a.log.Error("Database query for queue items failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, items)
	})
	rg.GET("/stats", func(c *gin.Context) {
		counts, err := a.queue.CountByStatus(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		stats := gin.H{}
		for _, s := range []models.QueueStatus{models.QueueStatusPending, models.QueueStatusProcessing, models.QueueStatusCompleted, models.QueueStatusFailed} {
			stats[string(s)] = counts[s]
		}
		c.JSON(http.StatusOK, stats)
	})
	rg.POST("/run", func(c *gin.Context) {
		var req struct {
			Limit          int        `json:"limit"`
			SourceID       *uuid.UUID `json:"source_id"`
			IngestionJobID *uuid.UUID `json:"ingestion_job_id"`
		}
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
				return
			}
		}
		summary, err := a.runner.RunPending(c.Request.Context(), services.RunPendingOptions{
			Limit:          req.Limit,
			SourceID:       req.SourceID,
			IngestionJobID: req.IngestionJobID,
		})
		if err != nil {
			a.log.Error("Extraction batch failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "extraction batch failed", "summary": summary})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
	rg.POST("/requeue-failed", func(c *gin.Context) {
		n, err := a.queue.RequeueFailed(c.Request.Context(), a.cfg.ExtractionMaxAttempts)
		if err != nil {
			a.log.Error("Requeue of failed items failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"requeued": n, "max_attempts": a.cfg.ExtractionMaxAttempts})
	})
}

func listLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

// optionalUUIDQuery schreibt bei ungültigem Wert selbst die 400-Antwort.
func optionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	return &id, true
}
