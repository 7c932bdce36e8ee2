package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"med13-pipeline/models"
	"med13-pipeline/repository"
)

type extractionRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPublicationExtractionRepo(db *gorm.DB, log *zap.Logger) repository.PublicationExtractionRepository {
	return &extractionRepo{db: db, log: log.With(zap.String("repo", "PublicationExtractionRepo"))}
}

func (r *extractionRepo) FindByQueueItemID(ctx context.Context, queueItemID uuid.UUID) (*models.PublicationExtraction, error) {
	var out models.PublicationExtraction
	err := r.db.WithContext(ctx).Where("queue_item_id = ?", queueItemID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *extractionRepo) Create(ctx context.Context, extraction *models.PublicationExtraction) error {
	if extraction.ID == uuid.Nil {
		extraction.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(extraction).Error
}

func (r *extractionRepo) Update(ctx context.Context, extraction *models.PublicationExtraction) error {
	if extraction.ID == uuid.Nil {
		return fmt.Errorf("update extraction without id: %w", repository.ErrNotFound)
	}
	res := r.db.WithContext(ctx).
		Model(&models.PublicationExtraction{}).
		Where("id = ?", extraction.ID).
		Updates(map[string]any{
			"status":             extraction.Status,
			"extraction_version": extraction.ExtractionVersion,
			"processor_name":     extraction.ProcessorName,
			"processor_version":  extraction.ProcessorVersion,
			"text_source":        extraction.TextSource,
			"document_reference": extraction.DocumentReference,
			"facts":              extraction.Facts,
			"metadata":           extraction.Metadata,
			"extracted_at":       extraction.ExtractedAt,
			"updated_at":         gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("extraction %s: %w", extraction.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *extractionRepo) ListByPublication(ctx context.Context, publicationID uint) ([]models.PublicationExtraction, error) {
	var out []models.PublicationExtraction
	if err := r.db.WithContext(ctx).
		Where("publication_id = ?", publicationID).
		Order("extracted_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
