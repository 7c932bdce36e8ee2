// Package gormrepo implementiert die Repositories auf PostgreSQL via GORM.
package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"med13-pipeline/models"
	"med13-pipeline/repository"
)

// AutoMigrate legt alle Tabellen der Pipeline an.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Publication{},
		&models.DataSource{},
		&models.IngestionJob{},
		&models.ExtractionQueueItem{},
		&models.PublicationExtraction{},
	)
}

type publicationRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPublicationRepo(db *gorm.DB, log *zap.Logger) repository.PublicationRepository {
	return &publicationRepo{db: db, log: log.With(zap.String("repo", "PublicationRepo"))}
}

func (r *publicationRepo) FindByPMID(ctx context.Context, pmid string) (*models.Publication, error) {
	if pmid == "" {
		return nil, nil
	}
	var pub models.Publication
	err := r.db.WithContext(ctx).Where("pubmed_id = ?", pmid).First(&pub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

func (r *publicationRepo) GetByID(ctx context.Context, id uint) (*models.Publication, error) {
	var pub models.Publication
	err := r.db.WithContext(ctx).First(&pub, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

func (r *publicationRepo) Create(ctx context.Context, pub *models.Publication) error {
	return r.db.WithContext(ctx).Create(pub).Error
}

func (r *publicationRepo) UpdatePublication(ctx context.Context, id uint, src *models.Publication) (*models.Publication, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Publication{}).
		Where("id = ?", id).
		Updates(src.MutableFields())
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("publication %d: %w", id, repository.ErrNotFound)
	}
	updated, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("publication %d: %w", id, repository.ErrNotFound)
	}
	return updated, nil
}

func (r *publicationRepo) List(ctx context.Context, limit, offset int) ([]models.Publication, error) {
	var out []models.Publication
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
