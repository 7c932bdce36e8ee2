package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceType bezeichnet die Art einer Datenquelle.
type SourceType string

const (
	SourceTypePubMed     SourceType = "pubmed"
	SourceTypeClinVar    SourceType = "clinvar"
	SourceTypeAPI        SourceType = "api"
	SourceTypeFileUpload SourceType = "file_upload"
)

// DataSource ist eine konfigurierte Quelle, aus der Publikationen ingestiert werden.
type DataSource struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name           string     `json:"name" gorm:"uniqueIndex;not null"`
	SourceType     SourceType `json:"source_type" gorm:"size:32;not null;index"`
	Query          string     `json:"query" gorm:"type:text"`
	MaxResults     int        `json:"max_results" gorm:"default:0"`
	Active         bool       `json:"active" gorm:"not null;index"`
	LastIngestedAt *time.Time `json:"last_ingested_at,omitempty"`
}

func (DataSource) TableName() string { return "data_sources" }
