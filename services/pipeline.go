package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"med13-pipeline/models"
	"med13-pipeline/repository"
)

// PipelineService verbindet Ingestion, Queue und Runner zu einem protokollierten Lauf pro Quelle.
type PipelineService struct {
	Sources   repository.DataSourceRepository
	Jobs      repository.IngestionJobRepository
	Ingestion *PubMedIngestionService
	Queue     *ExtractionQueueService
	Runner    *ExtractionRunnerService
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewPipelineService(
	sources repository.DataSourceRepository,
	jobs repository.IngestionJobRepository,
	ingestion *PubMedIngestionService,
	queue *ExtractionQueueService,
	runner *ExtractionRunnerService,
	logger *zap.Logger,
) *PipelineService {
	return &PipelineService{
		Sources:   sources,
		Jobs:      jobs,
		Ingestion: ingestion,
		Queue:     queue,
		Runner:    runner,
		Logger:    logger,
		Now:       time.Now,
	}
}

// RunSource führt Ingestion, Enqueue und Extraktion für eine Quelle aus und liefert den abgeschlossenen Job.
func (p *PipelineService) RunSource(ctx context.Context, sourceID uuid.UUID, trigger models.IngestionTrigger) (*models.IngestionJob, error) {
	source, err := p.Sources.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	log := p.Logger.With(zap.String("source_id", sourceID.String()), zap.String("trigger", string(trigger)))

	job := &models.IngestionJob{
		ID:            uuid.New(),
		SourceID:      source.ID,
		Status:        models.IngestionJobRunning,
		Trigger:       trigger,
		ExecutedQuery: source.Query,
		StartedAt:     p.Now().UTC(),
	}
	if err := p.Jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create ingestion job: %w", err)
	}
	log = log.With(zap.String("ingestion_job_id", job.ID.String()))

	summary, err := p.Ingestion.Ingest(ctx, source)
	if err != nil {
		return p.finish(job, log, err)
	}
	job.ExecutedQuery = summary.ExecutedQuery
	job.FetchedRecords = summary.FetchedRecords
	job.ParsedPublications = summary.ParsedPublications
	job.CreatedPublications = summary.CreatedPublications
	job.UpdatedPublications = summary.UpdatedPublications
	job.RawStorageKey = summary.RawStorageKey

	queued, err := p.Queue.Enqueue(ctx, EnqueueRequest{
		SourceID:       source.ID,
		IngestionJobID: job.ID,
		PublicationIDs: summary.PublicationIDs(),
		PubMedIDs:      summary.PubMedIDs,
	})
	if err != nil {
		return p.finish(job, log, fmt.Errorf("enqueue publications: %w", err))
	}
	job.QueuedItems = queued.Queued

	run, err := p.Runner.RunForIngestionJob(ctx, source.ID, job.ID, queued.Queued, 0)
	if run != nil {
		job.ExtractionProcessed = run.Processed
		job.ExtractionCompleted = run.Completed
		job.ExtractionSkipped = run.Skipped
		job.ExtractionFailed = run.Failed
	}
	if err != nil {
		return p.finish(job, log, fmt.Errorf("run extraction: %w", err))
	}

	if err := p.Sources.MarkIngested(ctx, source.ID, job.StartedAt); err != nil {
		log.Warn("last_ingested_at konnte nicht gesetzt werden", zap.Error(err))
	}
	return p.finish(job, log, nil)
}

// finish schreibt den Endstatus des Jobs. Der Kontext des Laufs kann bereits abgebrochen sein.
func (p *PipelineService) finish(job *models.IngestionJob, log *zap.Logger, cause error) (*models.IngestionJob, error) {
	now := p.Now().UTC()
	job.CompletedAt = &now
	job.Status = models.IngestionJobCompleted
	if cause != nil {
		msg := cause.Error()
		job.Status = models.IngestionJobFailed
		job.Error = &msg
		log.Error("Ingestion-Lauf fehlgeschlagen", zap.Error(cause))
	} else {
		log.Info("Ingestion-Lauf abgeschlossen",
			zap.Int("created", job.CreatedPublications),
			zap.Int("updated", job.UpdatedPublications),
			zap.Int("queued", job.QueuedItems),
			zap.Int("extraction_completed", job.ExtractionCompleted),
			zap.Int("extraction_failed", job.ExtractionFailed))
	}
	if err := p.Jobs.Save(context.Background(), job); err != nil {
		log.Error("Ingestion-Job konnte nicht gespeichert werden", zap.Error(err))
		if cause == nil {
			return job, err
		}
	}
	return job, cause
}

// RunAllActive führt RunSource für alle aktiven PubMed-Quellen aus. Fehler einzelner Quellen brechen den Lauf nicht ab.
func (p *PipelineService) RunAllActive(ctx context.Context, trigger models.IngestionTrigger) ([]models.IngestionJob, error) {
	sources, err := p.Sources.ListActive(ctx, models.SourceTypePubMed)
	if err != nil {
		p.Logger.Error("Aktive Quellen konnten nicht geladen werden", zap.Error(err))
		return nil, err
	}
	jobs := make([]models.IngestionJob, 0, len(sources))
	for _, src := range sources {
		if ctx.Err() != nil {
			return jobs, ctx.Err()
		}
		job, err := p.RunSource(ctx, src.ID, trigger)
		if err != nil {
			p.Logger.Error("Quelle konnte nicht verarbeitet werden", zap.String("source", src.Name), zap.Error(err))
		}
		if job != nil {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}
