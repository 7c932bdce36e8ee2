// Package repository definiert die Persistenz-Schnittstellen der Pipeline.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"med13-pipeline/models"
)

// ErrNotFound wird geliefert, wenn ein per ID adressierter Datensatz fehlt.
var ErrNotFound = errors.New("record not found")

// PublicationRepository verwaltet Publikationen.
type PublicationRepository interface {
	// FindByPMID liefert nil, nil wenn keine Publikation mit der PMID existiert.
	FindByPMID(ctx context.Context, pmid string) (*models.Publication, error)
	// GetByID liefert nil, nil wenn die Publikation fehlt.
	GetByID(ctx context.Context, id uint) (*models.Publication, error)
	Create(ctx context.Context, pub *models.Publication) error
	UpdatePublication(ctx context.Context, id uint, src *models.Publication) (*models.Publication, error)
	List(ctx context.Context, limit, offset int) ([]models.Publication, error)
}

// ClaimFilter schränkt die zu beanspruchenden Queue-Einträge ein.
type ClaimFilter struct {
	SourceID       *uuid.UUID
	IngestionJobID *uuid.UUID
}

// QueueListFilter steuert die Auflistung von Queue-Einträgen.
type QueueListFilter struct {
	Status         models.QueueStatus
	SourceID       *uuid.UUID
	IngestionJobID *uuid.UUID
	Limit          int
}

// ExtractionQueueRepository verwaltet die Extraktions-Queue.
type ExtractionQueueRepository interface {
	// EnqueueMany fügt Einträge ein, überspringt Duplikate und liefert die Anzahl eingefügter Zeilen.
	EnqueueMany(ctx context.Context, items []models.ExtractionQueueItem) (int, error)
	// ClaimPending setzt bis zu limit wartende Einträge atomar auf processing und erhöht attempts.
	ClaimPending(ctx context.Context, limit int, filter ClaimFilter) ([]models.ExtractionQueueItem, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, metadata map[string]any) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	// RequeueFailed setzt fehlgeschlagene Einträge mit weniger als maxAttempts Versuchen zurück auf pending.
	RequeueFailed(ctx context.Context, maxAttempts int) (int, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ExtractionQueueItem, error)
	List(ctx context.Context, filter QueueListFilter) ([]models.ExtractionQueueItem, error)
	CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error)
}

// PublicationExtractionRepository verwaltet Extraktionsergebnisse.
type PublicationExtractionRepository interface {
	// FindByQueueItemID liefert nil, nil wenn für den Queue-Eintrag noch nichts gespeichert ist.
	FindByQueueItemID(ctx context.Context, queueItemID uuid.UUID) (*models.PublicationExtraction, error)
	Create(ctx context.Context, extraction *models.PublicationExtraction) error
	Update(ctx context.Context, extraction *models.PublicationExtraction) error
	ListByPublication(ctx context.Context, publicationID uint) ([]models.PublicationExtraction, error)
}

// DataSourceRepository verwaltet Datenquellen.
type DataSourceRepository interface {
	Create(ctx context.Context, source *models.DataSource) error
	Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error)
	List(ctx context.Context) ([]models.DataSource, error)
	ListActive(ctx context.Context, sourceType models.SourceType) ([]models.DataSource, error)
	MarkIngested(ctx context.Context, id uuid.UUID, at time.Time) error
}

// IngestionJobRepository verwaltet Ingestion-Läufe.
type IngestionJobRepository interface {
	Create(ctx context.Context, job *models.IngestionJob) error
	Save(ctx context.Context, job *models.IngestionJob) error
	Get(ctx context.Context, id uuid.UUID) (*models.IngestionJob, error)
	List(ctx context.Context, sourceID *uuid.UUID, limit int) ([]models.IngestionJob, error)
}
