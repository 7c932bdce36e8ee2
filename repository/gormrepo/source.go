package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"med13-pipeline/models"
	"med13-pipeline/repository"
)

type dataSourceRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewDataSourceRepo(db *gorm.DB, log *zap.Logger) repository.DataSourceRepository {
	return &dataSourceRepo{db: db, log: log.With(zap.String("repo", "DataSourceRepo"))}
}

func (r *dataSourceRepo) Create(ctx context.Context, source *models.DataSource) error {
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(source).Error
}

func (r *dataSourceRepo) Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	var out models.DataSource
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("data source %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *dataSourceRepo) List(ctx context.Context) ([]models.DataSource, error) {
	var out []models.DataSource
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dataSourceRepo) ListActive(ctx context.Context, sourceType models.SourceType) ([]models.DataSource, error) {
	var out []models.DataSource
	q := r.db.WithContext(ctx).Where("active = ?", true)
	if sourceType != "" {
		q = q.Where("source_type = ?", sourceType)
	}
	if err := q.Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dataSourceRepo) MarkIngested(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DataSource{}).
		Where("id = ?", id).
		Update("last_ingested_at", at).Error
}

type ingestionJobRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewIngestionJobRepo(db *gorm.DB, log *zap.Logger) repository.IngestionJobRepository {
	return &ingestionJobRepo{db: db, log: log.With(zap.String("repo", "IngestionJobRepo"))}
}

func (r *ingestionJobRepo) Create(ctx context.Context, job *models.IngestionJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *ingestionJobRepo) Save(ctx context.Context, job *models.IngestionJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *ingestionJobRepo) Get(ctx context.Context, id uuid.UUID) (*models.IngestionJob, error) {
	var out models.IngestionJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ingestion job %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ingestionJobRepo) List(ctx context.Context, sourceID *uuid.UUID, limit int) ([]models.IngestionJob, error) {
	var out []models.IngestionJob
	q := r.db.WithContext(ctx).Order("started_at DESC")
	if sourceID != nil {
		q = q.Where("source_id = ?", *sourceID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
