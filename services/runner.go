package services

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"med13-pipeline/metrics"
	"med13-pipeline/models"
	"med13-pipeline/repository"
	"med13-pipeline/storage"
)

// DefaultExtractionBatchSize ist die Batchgröße, wenn nichts konfiguriert ist.
const DefaultExtractionBatchSize = 25

const fallbackFailureMessage = "extraction_failed"

// ExtractionRunSummary fasst einen Lauf des Runners zusammen.
type ExtractionRunSummary struct {
	SourceID       *uuid.UUID `json:"source_id,omitempty"`
	IngestionJobID *uuid.UUID `json:"ingestion_job_id,omitempty"`
	Processed      int        `json:"processed"`
	Completed      int        `json:"completed"`
	Skipped        int        `json:"skipped"`
	Failed         int        `json:"failed"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    time.Time  `json:"completed_at"`
}

func (s *ExtractionRunSummary) add(other ExtractionRunSummary) {
	s.Processed += other.Processed
	s.Completed += other.Completed
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

// RunPendingOptions steuert einen einzelnen Batch.
type RunPendingOptions struct {
	Limit          int
	SourceID       *uuid.UUID
	IngestionJobID *uuid.UUID
}

// ExtractionRunnerService arbeitet die Extraktions-Queue in Batches ab.
type ExtractionRunnerService struct {
	Queue        repository.ExtractionQueueRepository
	Publications repository.PublicationRepository
	Extractions  repository.PublicationExtractionRepository
	Processor    ExtractionProcessor
	// Storage ist optional. Ohne Storage wird der Text nur im Speicher verarbeitet.
	Storage       storage.Coordinator
	StorageUserID string
	BatchSize     int
	Logger        *zap.Logger
	Now           func() time.Time
}

func NewExtractionRunnerService(
	queue repository.ExtractionQueueRepository,
	publications repository.PublicationRepository,
	extractions repository.PublicationExtractionRepository,
	processor ExtractionProcessor,
	store storage.Coordinator,
	batchSize int,
	logger *zap.Logger,
) *ExtractionRunnerService {
	return &ExtractionRunnerService{
		Queue:        queue,
		Publications: publications,
		Extractions:  extractions,
		Processor:    processor,
		Storage:      store,
		BatchSize:    normalizeBatchSize(batchSize),
		Logger:       logger,
		Now:          time.Now,
	}
}

func normalizeBatchSize(n int) int {
	if n == 0 {
		return DefaultExtractionBatchSize
	}
	return max(n, 1)
}

func (s *ExtractionRunnerService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// RunForIngestionJob verarbeitet Batches, bis die Queue für den Job leer ist oder expectedItems erreicht sind.
func (s *ExtractionRunnerService) RunForIngestionJob(ctx context.Context, sourceID, jobID uuid.UUID, expectedItems, batchSize int) (*ExtractionRunSummary, error) {
	summary := &ExtractionRunSummary{SourceID: &sourceID, IngestionJobID: &jobID, StartedAt: s.now()}
	if expectedItems <= 0 {
		summary.CompletedAt = summary.StartedAt
		return summary, nil
	}
	if batchSize <= 0 {
		batchSize = s.BatchSize
	}
	batchSize = normalizeBatchSize(batchSize)

	log := s.Logger.With(zap.String("source_id", sourceID.String()), zap.String("ingestion_job_id", jobID.String()))
	filter := repository.ClaimFilter{SourceID: &sourceID, IngestionJobID: &jobID}

	for summary.Processed < expectedItems {
		if err := ctx.Err(); err != nil {
			summary.CompletedAt = s.now()
			return summary, err
		}
		limit := min(batchSize, expectedItems-summary.Processed)
		batch, claimed, err := s.runBatch(ctx, limit, filter)
		summary.add(batch)
		if err != nil {
			summary.CompletedAt = s.now()
			return summary, err
		}
		if claimed == 0 {
			break
		}
	}

	summary.CompletedAt = s.now()
	log.Info("Extraktion für Ingestion-Lauf abgeschlossen",
		zap.Int("processed", summary.Processed),
		zap.Int("completed", summary.Completed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// RunPending verarbeitet genau einen Batch, optional gefiltert nach Quelle oder Job.
func (s *ExtractionRunnerService) RunPending(ctx context.Context, opts RunPendingOptions) (*ExtractionRunSummary, error) {
	summary := &ExtractionRunSummary{SourceID: opts.SourceID, IngestionJobID: opts.IngestionJobID, StartedAt: s.now()}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.BatchSize
	}
	batch, _, err := s.runBatch(ctx, normalizeBatchSize(limit), repository.ClaimFilter{SourceID: opts.SourceID, IngestionJobID: opts.IngestionJobID})
	summary.add(batch)
	summary.CompletedAt = s.now()
	return summary, err
}

// runBatch beansprucht bis zu limit Einträge und verarbeitet sie nacheinander.
func (s *ExtractionRunnerService) runBatch(ctx context.Context, limit int, filter repository.ClaimFilter) (ExtractionRunSummary, int, error) {
	var summary ExtractionRunSummary
	items, err := s.Queue.ClaimPending(ctx, limit, filter)
	if err != nil {
		s.Logger.Error("Queue-Einträge konnten nicht beansprucht werden", zap.Error(err))
		return summary, 0, err
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			// Beanspruchte Einträge nicht in processing hängen lassen.
			s.release(items[i:], err)
			summary.Processed += len(items) - i
			summary.Failed += len(items) - i
			return summary, len(items), err
		}
		outcome := s.processItem(ctx, item)
		metrics.ExtractionItems.WithLabelValues(string(outcome)).Inc()
		summary.Processed++
		switch outcome {
		case models.ExtractionStatusCompleted:
			summary.Completed++
		case models.ExtractionStatusSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	return summary, len(items), nil
}

func (s *ExtractionRunnerService) release(items []models.ExtractionQueueItem, cause error) {
	ctx := context.Background()
	for _, item := range items {
		if err := s.Queue.MarkFailed(ctx, item.ID, cause.Error()); err != nil {
			s.Logger.Error("Queue-Eintrag konnte nicht freigegeben werden", zap.String("queue_item_id", item.ID.String()), zap.Error(err))
		}
	}
}

// processItem verarbeitet einen Eintrag. Fehler werden in den Queue-Status übersetzt und nie weitergereicht.
func (s *ExtractionRunnerService) processItem(ctx context.Context, item models.ExtractionQueueItem) models.ExtractionStatus {
	log := s.Logger.With(
		zap.String("queue_item_id", item.ID.String()),
		zap.Uint("publication_id", item.PublicationID),
		zap.Int("attempt", item.Attempts),
	)

	publication, err := s.Publications.GetByID(ctx, item.PublicationID)
	if err != nil {
		log.Error("Publikation konnte nicht geladen werden", zap.Error(err))
		return s.fail(ctx, log, item, err.Error())
	}

	payload := s.buildPayload(ctx, log, item, publication)

	result, err := s.Processor.ExtractPublication(ctx, item, publication, payload)
	if err != nil {
		log.Error("Processor ist fehlgeschlagen", zap.Error(err))
		return s.fail(ctx, log, item, err.Error())
	}
	if result == nil {
		return s.fail(ctx, log, item, "processor returned no result")
	}
	if result.DocumentReference == nil && payload != nil {
		result.DocumentReference = payload.DocumentReference
	}

	extraction, err := s.persist(ctx, item, publication, result)
	if err != nil {
		log.Error("Extraktion konnte nicht gespeichert werden", zap.Error(err))
		return s.fail(ctx, log, item, err.Error())
	}

	if result.Status == models.ExtractionStatusFailed {
		msg := result.ErrorMessage
		if msg == "" {
			msg = fallbackFailureMessage
		}
		log.Warn("Processor meldet Fehlschlag", zap.String("error", msg))
		return s.fail(ctx, log, item, msg)
	}

	metadata := models.DecodeMap(item.Metadata)
	metadata["extraction_id"] = extraction.ID.String()
	metadata["processor_name"] = result.ProcessorName
	metadata["processor_version"] = result.ProcessorVersion
	metadata["publication_id"] = item.PublicationID
	metadata["pubmed_id"] = extraction.PubMedID
	metadata["status"] = string(result.Status)
	if err := s.Queue.MarkCompleted(ctx, item.ID, metadata); err != nil {
		log.Error("Queue-Eintrag konnte nicht abgeschlossen werden", zap.Error(err))
		return models.ExtractionStatusFailed
	}

	log.Debug("Queue-Eintrag verarbeitet", zap.String("status", string(result.Status)), zap.Int("facts", len(result.Facts)))
	if result.Status == models.ExtractionStatusSkipped {
		return models.ExtractionStatusSkipped
	}
	return models.ExtractionStatusCompleted
}

func (s *ExtractionRunnerService) fail(ctx context.Context, log *zap.Logger, item models.ExtractionQueueItem, msg string) models.ExtractionStatus {
	if err := s.Queue.MarkFailed(ctx, item.ID, msg); err != nil {
		log.Error("Queue-Eintrag konnte nicht als fehlgeschlagen markiert werden", zap.Error(err))
	}
	return models.ExtractionStatusFailed
}

// buildPayload bevorzugt Titel und Abstract, sonst was vorhanden ist. Ohne Text gibt es kein Payload.
func (s *ExtractionRunnerService) buildPayload(ctx context.Context, log *zap.Logger, item models.ExtractionQueueItem, publication *models.Publication) *TextPayload {
	if publication == nil {
		return nil
	}
	var payload *TextPayload
	switch title, abstract := NormalizeText(publication.Title), NormalizeText(publication.Abstract); {
	case title != "" && abstract != "":
		payload = &TextPayload{Text: title + "\n\n" + abstract, TextSource: models.TextSourceTitleAbstract}
	case title != "":
		payload = &TextPayload{Text: title, TextSource: models.TextSourceTitle}
	case abstract != "":
		payload = &TextPayload{Text: abstract, TextSource: models.TextSourceAbstract}
	default:
		return nil
	}

	if s.Storage == nil {
		return payload
	}
	documentID := publication.PubMedID
	if documentID == "" {
		documentID = strconv.FormatUint(uint64(publication.ID), 10)
	}
	key := storage.ExtractionTextKey(item.SourceID, item.IngestionJobID, documentID, item.ExtractionVersion, item.ID, string(payload.TextSource))
	record, err := s.Storage.StoreForUseCase(ctx, storage.UseCaseDocumentContent, key, []byte(payload.Text), "text/plain; charset=utf-8", s.StorageUserID, map[string]string{
		"queue_item_id":  item.ID.String(),
		"publication_id": strconv.FormatUint(uint64(item.PublicationID), 10),
		"text_source":    string(payload.TextSource),
	})
	if err != nil {
		metrics.StorageFailures.WithLabelValues(string(storage.UseCaseDocumentContent)).Inc()
		log.Warn("Extraktionstext konnte nicht gespeichert werden", zap.String("key", key), zap.Error(err))
		return payload
	}
	ref := record.Key
	payload.DocumentReference = &ref
	return payload
}

// persist legt die Extraktion an oder aktualisiert die bestehende zum selben Queue-Eintrag.
func (s *ExtractionRunnerService) persist(ctx context.Context, item models.ExtractionQueueItem, publication *models.Publication, result *ExtractionProcessorResult) (*models.PublicationExtraction, error) {
	existing, err := s.Extractions.FindByQueueItemID(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	pubmedID := item.PubMedID
	if pubmedID == "" && publication != nil {
		pubmedID = publication.PubMedID
	}
	status := result.Status
	if status == "" {
		status = models.ExtractionStatusFailed
	}
	textSource := result.TextSource
	if textSource == "" {
		textSource = models.TextSourceTitleAbstract
	}
	metadata := result.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if result.ErrorMessage != "" {
		metadata["error"] = result.ErrorMessage
	}
	facts := result.Facts
	if facts == nil {
		facts = []models.ExtractionFact{}
	}

	extraction := &models.PublicationExtraction{
		PublicationID:     item.PublicationID,
		PubMedID:          pubmedID,
		SourceID:          item.SourceID,
		IngestionJobID:    item.IngestionJobID,
		QueueItemID:       item.ID,
		Status:            status,
		ExtractionVersion: item.ExtractionVersion,
		ProcessorName:     result.ProcessorName,
		ProcessorVersion:  result.ProcessorVersion,
		TextSource:        textSource,
		DocumentReference: result.DocumentReference,
		Facts:             models.EncodeJSON(facts),
		Metadata:          models.EncodeJSON(metadata),
		ExtractedAt:       s.now(),
	}

	if existing == nil {
		if err := s.Extractions.Create(ctx, extraction); err != nil {
			return nil, err
		}
		return extraction, nil
	}
	extraction.ID = existing.ID
	extraction.CreatedAt = existing.CreatedAt
	if err := s.Extractions.Update(ctx, extraction); err != nil {
		return nil, err
	}
	return extraction, nil
}

