package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DefaultExtractionVersion ist die Extraktionsversion, solange keine andere konfiguriert ist.
const DefaultExtractionVersion = 1

// QueueStatus ist der Lebenszyklus-Status eines Queue-Eintrags.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// ExtractionStatus ist das Ergebnis einer einzelnen Extraktion.
type ExtractionStatus string

const (
	ExtractionStatusCompleted ExtractionStatus = "completed"
	ExtractionStatusFailed    ExtractionStatus = "failed"
	ExtractionStatusSkipped   ExtractionStatus = "skipped"
)

// TextSource beschreibt, aus welchem Teil der Publikation der Text stammt.
type TextSource string

const (
	TextSourceTitle         TextSource = "title"
	TextSourceAbstract      TextSource = "abstract"
	TextSourceTitleAbstract TextSource = "title_abstract"
	TextSourceFullText      TextSource = "full_text"
)

// FactType klassifiziert einen extrahierten Befund.
type FactType string

const (
	FactTypeGene      FactType = "gene"
	FactTypeVariant   FactType = "variant"
	FactTypePhenotype FactType = "phenotype"
	FactTypeDrug      FactType = "drug"
	FactTypeMechanism FactType = "mechanism"
	FactTypePathway   FactType = "pathway"
	FactTypeOther     FactType = "other"
)

// ExtractionQueueItem ist eine Arbeitseinheit der Extraktion.
type ExtractionQueueItem struct {
	ID                uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	PublicationID     uint           `json:"publication_id" gorm:"not null;uniqueIndex:idx_extraction_queue_unique_item,priority:1"`
	PubMedID          string         `json:"pubmed_id,omitempty" gorm:"column:pubmed_id;size:32;index"`
	SourceID          uuid.UUID      `json:"source_id" gorm:"type:uuid;not null;uniqueIndex:idx_extraction_queue_unique_item,priority:2;index"`
	IngestionJobID    uuid.UUID      `json:"ingestion_job_id" gorm:"type:uuid;not null;index"`
	Status            QueueStatus    `json:"status" gorm:"size:32;not null;index;default:'pending'"`
	Attempts          int            `json:"attempts" gorm:"not null;default:0"`
	LastError         *string        `json:"last_error,omitempty" gorm:"type:text"`
	ExtractionVersion int            `json:"extraction_version" gorm:"not null;default:1;uniqueIndex:idx_extraction_queue_unique_item,priority:3"`
	Metadata          datatypes.JSON `json:"metadata" gorm:"type:jsonb;not null;default:'{}'"`
	QueuedAt          time.Time      `json:"queued_at" gorm:"not null;index"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (ExtractionQueueItem) TableName() string { return "extraction_queue" }

// ExtractionFact ist ein einzelner Befund aus dem Text.
type ExtractionFact struct {
	FactType     FactType       `json:"fact_type"`
	Value        string         `json:"value"`
	NormalizedID string         `json:"normalized_id,omitempty"`
	Source       string         `json:"source,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// PublicationExtraction ist das gespeicherte Ergebnis für genau einen Queue-Eintrag.
type PublicationExtraction struct {
	ID                uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	PublicationID     uint             `json:"publication_id" gorm:"not null;index"`
	PubMedID          string           `json:"pubmed_id,omitempty" gorm:"column:pubmed_id;size:32;index"`
	SourceID          uuid.UUID        `json:"source_id" gorm:"type:uuid;not null;index"`
	IngestionJobID    uuid.UUID        `json:"ingestion_job_id" gorm:"type:uuid;not null;index"`
	QueueItemID       uuid.UUID        `json:"queue_item_id" gorm:"type:uuid;not null;uniqueIndex"`
	Status            ExtractionStatus `json:"status" gorm:"size:32;not null;index"`
	ExtractionVersion int              `json:"extraction_version" gorm:"not null;default:1"`
	ProcessorName     string           `json:"processor_name" gorm:"size:128;not null"`
	ProcessorVersion  string           `json:"processor_version" gorm:"size:32;not null"`
	TextSource        TextSource       `json:"text_source" gorm:"size:32;not null"`
	DocumentReference *string          `json:"document_reference,omitempty" gorm:"type:text"`
	Facts             datatypes.JSON   `json:"facts" gorm:"type:jsonb;not null;default:'[]'"`
	Metadata          datatypes.JSON   `json:"metadata" gorm:"type:jsonb;not null;default:'{}'"`
	ExtractedAt       time.Time        `json:"extracted_at"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (PublicationExtraction) TableName() string { return "publication_extractions" }

// FactList dekodiert die gespeicherten Fakten.
func (e *PublicationExtraction) FactList() []ExtractionFact {
	if len(e.Facts) == 0 {
		return nil
	}
	var out []ExtractionFact
	if err := json.Unmarshal(e.Facts, &out); err != nil {
		return nil
	}
	return out
}
