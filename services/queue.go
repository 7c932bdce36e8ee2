package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"med13-pipeline/metrics"
	"med13-pipeline/models"
	"med13-pipeline/repository"
)

// EnqueueRequest beschreibt die Publikationen eines Ingestion-Laufs, die extrahiert werden sollen.
type EnqueueRequest struct {
	SourceID       uuid.UUID
	IngestionJobID uuid.UUID
	PublicationIDs []uint
	// PubMedIDs ist optional und wird denormalisiert am Queue-Eintrag gespeichert.
	PubMedIDs map[uint]string
	// ExtractionVersion überschreibt die Standardversion, wenn > 0.
	ExtractionVersion int
}

// QueueSummary zählt angeforderte, eingefügte und übersprungene Einträge.
type QueueSummary struct {
	Requested int `json:"requested"`
	Queued    int `json:"queued"`
	Skipped   int `json:"skipped"`
}

// ExtractionQueueService legt Queue-Einträge nach einem Ingestion-Lauf an.
type ExtractionQueueService struct {
	Queue          repository.ExtractionQueueRepository
	Logger         *zap.Logger
	DefaultVersion int
	Now            func() time.Time
}

func NewExtractionQueueService(queue repository.ExtractionQueueRepository, defaultVersion int, logger *zap.Logger) *ExtractionQueueService {
	if defaultVersion < 1 {
		defaultVersion = models.DefaultExtractionVersion
	}
	return &ExtractionQueueService{Queue: queue, Logger: logger, DefaultVersion: defaultVersion, Now: time.Now}
}

// Enqueue legt je Publikation einen Eintrag an. Duplikate werden vom Repository übersprungen.
func (s *ExtractionQueueService) Enqueue(ctx context.Context, req EnqueueRequest) (QueueSummary, error) {
	if len(req.PublicationIDs) == 0 {
		return QueueSummary{}, nil
	}
	version := req.ExtractionVersion
	if version < 1 {
		version = s.DefaultVersion
	}
	now := s.Now().UTC()

	items := make([]models.ExtractionQueueItem, 0, len(req.PublicationIDs))
	for _, pubID := range req.PublicationIDs {
		items = append(items, models.ExtractionQueueItem{
			ID:                uuid.New(),
			PublicationID:     pubID,
			PubMedID:          req.PubMedIDs[pubID],
			SourceID:          req.SourceID,
			IngestionJobID:    req.IngestionJobID,
			Status:            models.QueueStatusPending,
			ExtractionVersion: version,
			Metadata:          models.EncodeJSON(map[string]any{}),
			QueuedAt:          now,
			UpdatedAt:         now,
		})
	}

	queued, err := s.Queue.EnqueueMany(ctx, items)
	if err != nil {
		s.Logger.Error("Queue-Einträge konnten nicht angelegt werden",
			zap.String("source_id", req.SourceID.String()),
			zap.String("ingestion_job_id", req.IngestionJobID.String()),
			zap.Error(err))
		return QueueSummary{}, err
	}
	metrics.QueueItemsEnqueued.Add(float64(queued))

	summary := QueueSummary{Requested: len(items), Queued: queued, Skipped: len(items) - queued}
	s.Logger.Info("Publikationen zur Extraktion eingereiht",
		zap.String("source_id", req.SourceID.String()),
		zap.Int("requested", summary.Requested),
		zap.Int("queued", summary.Queued),
		zap.Int("skipped", summary.Skipped),
		zap.Int("extraction_version", version))
	return summary, nil
}
