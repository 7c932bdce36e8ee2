package models

import (
	"time"

	"github.com/google/uuid"
)

// IngestionJobStatus ist der Status eines Ingestion-Laufs.
type IngestionJobStatus string

const (
	IngestionJobRunning   IngestionJobStatus = "running"
	IngestionJobCompleted IngestionJobStatus = "completed"
	IngestionJobFailed    IngestionJobStatus = "failed"
)

// IngestionTrigger beschreibt, wer einen Lauf ausgelöst hat.
type IngestionTrigger string

const (
	IngestionTriggerManual    IngestionTrigger = "manual"
	IngestionTriggerScheduled IngestionTrigger = "scheduled"
)

// IngestionJob protokolliert einen Ingestion-Lauf samt anschließender Extraktion.
type IngestionJob struct {
	ID       uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	SourceID uuid.UUID          `json:"source_id" gorm:"type:uuid;not null;index"`
	Status   IngestionJobStatus `json:"status" gorm:"size:32;not null;index"`
	Trigger  IngestionTrigger   `json:"trigger" gorm:"size:32;not null"`

	ExecutedQuery       string  `json:"executed_query" gorm:"type:text"`
	FetchedRecords      int     `json:"fetched_records"`
	ParsedPublications  int     `json:"parsed_publications"`
	CreatedPublications int     `json:"created_publications"`
	UpdatedPublications int     `json:"updated_publications"`
	QueuedItems         int     `json:"queued_items"`
	ExtractionProcessed int     `json:"extraction_processed"`
	ExtractionCompleted int     `json:"extraction_completed"`
	ExtractionSkipped   int     `json:"extraction_skipped"`
	ExtractionFailed    int     `json:"extraction_failed"`
	RawStorageKey       *string `json:"raw_storage_key,omitempty" gorm:"type:text"`
	Error               *string `json:"error,omitempty" gorm:"type:text"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null;index"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (IngestionJob) TableName() string { return "ingestion_jobs" }
