package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"med13-pipeline/models"
	"med13-pipeline/repository"
)

const enqueueBatchSize = 500

type queueRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewExtractionQueueRepo(db *gorm.DB, log *zap.Logger) repository.ExtractionQueueRepository {
	return &queueRepo{db: db, log: log.With(zap.String("repo", "ExtractionQueueRepo"))}
}

func (r *queueRepo) EnqueueMany(ctx context.Context, items []models.ExtractionQueueItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "publication_id"}, {Name: "source_id"}, {Name: "extraction_version"}},
			DoNothing: true,
		}).
		CreateInBatches(&items, enqueueBatchSize)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *queueRepo) ClaimPending(ctx context.Context, limit int, filter repository.ClaimFilter) ([]models.ExtractionQueueItem, error) {
	claimed := []models.ExtractionQueueItem{}
	if limit < 1 {
		return claimed, nil
	}
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.ExtractionQueueItem{}).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Select("id").
			Where("status = ?", models.QueueStatusPending)
		if filter.SourceID != nil {
			q = q.Where("source_id = ?", *filter.SourceID)
		}
		if filter.IngestionJobID != nil {
			q = q.Where("ingestion_job_id = ?", *filter.IngestionJobID)
		}
		var locked []models.ExtractionQueueItem
		if err := q.Order("queued_at ASC").Order("id ASC").Limit(limit).Find(&locked).Error; err != nil {
			return err
		}
		if len(locked) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(locked))
		for _, it := range locked {
			ids = append(ids, it.ID)
		}
		if err := tx.Model(&models.ExtractionQueueItem{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":       models.QueueStatusProcessing,
				"attempts":     gorm.Expr("attempts + 1"),
				"started_at":   now,
				"completed_at": nil,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Order("queued_at ASC").Order("id ASC").Find(&claimed).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim pending queue items: %w", err)
	}
	return claimed, nil
}

func (r *queueRepo) MarkCompleted(ctx context.Context, id uuid.UUID, metadata map[string]any) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":       models.QueueStatusCompleted,
		"last_error":   nil,
		"completed_at": now,
		"updated_at":   now,
	}
	if metadata != nil {
		updates["metadata"] = models.EncodeJSON(metadata)
	}
	return r.update(ctx, id, updates)
}

func (r *queueRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	now := time.Now().UTC()
	return r.update(ctx, id, map[string]any{
		"status":       models.QueueStatusFailed,
		"last_error":   lastError,
		"completed_at": now,
		"updated_at":   now,
	})
}

func (r *queueRepo) update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.ExtractionQueueItem{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("queue item %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r *queueRepo) RequeueFailed(ctx context.Context, maxAttempts int) (int, error) {
	q := r.db.WithContext(ctx).
		Model(&models.ExtractionQueueItem{}).
		Where("status = ?", models.QueueStatusFailed)
	if maxAttempts > 0 {
		q = q.Where("attempts < ?", maxAttempts)
	}
	res := q.Updates(map[string]any{
		"status":       models.QueueStatusPending,
		"started_at":   nil,
		"completed_at": nil,
		"updated_at":   time.Now().UTC(),
	})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *queueRepo) Get(ctx context.Context, id uuid.UUID) (*models.ExtractionQueueItem, error) {
	var item models.ExtractionQueueItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("queue item %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *queueRepo) List(ctx context.Context, filter repository.QueueListFilter) ([]models.ExtractionQueueItem, error) {
	q := r.db.WithContext(ctx).Model(&models.ExtractionQueueItem{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.SourceID != nil {
		q = q.Where("source_id = ?", *filter.SourceID)
	}
	if filter.IngestionJobID != nil {
		q = q.Where("ingestion_job_id = ?", *filter.IngestionJobID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []models.ExtractionQueueItem
	if err := q.Order("queued_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *queueRepo) CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error) {
	var rows []struct {
		Status models.QueueStatus
		Count  int
	}
	if err := r.db.WithContext(ctx).
		Model(&models.ExtractionQueueItem{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[models.QueueStatus]int{}
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
