package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/reelforge/clip-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBatchRepo is the postgres-backed BatchRepository.
type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

var _ BatchRepository = (*GormBatchRepo)(nil)

func (r *GormBatchRepo) Create(ctx context.Context, batch *domain.Batch) error {
	model := batchModelFromDomain(batch)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("%w: create batch: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Save upserts the full batch snapshot, replacing items so that removed rows
// do not linger. Saving the same snapshot twice is a no-op.
func (r *GormBatchRepo) Save(ctx context.Context, batch *domain.Batch) error {
	model := batchModelFromDomain(batch)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := model.Items
		model.Items = nil

		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error; err != nil {
			return err
		}

		keep := make([]string, 0, len(items))
		for i := range items {
			keep = append(keep, items[i].ID)
		}
		del := tx.Where("batch_id = ?", model.ID)
		if len(keep) > 0 {
			del = del.Where("id NOT IN ?", keep)
		}
		if err := del.Delete(&BatchItemModel{}).Error; err != nil {
			return err
		}

		if len(items) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&items).Error
	})
	if err != nil {
		return fmt.Errorf("%w: save batch %s: %v", domain.ErrPersistence, batch.ID, err)
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_order ASC") }).
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load batch %s: %v", domain.ErrPersistence, id, err)
	}
	return batchModelToDomain(&model), nil
}

func (r *GormBatchRepo) List(ctx context.Context, params ListParams) ([]domain.Batch, int64, error) {
	query := r.db.WithContext(ctx).Model(&BatchModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Platform != nil {
		query = query.Where("platform = ?", *params.Platform)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: count batches: %v", domain.ErrPersistence, err)
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []BatchModel
	err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_order ASC") }).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list batches: %v", domain.ErrPersistence, err)
	}

	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		batches = append(batches, *batchModelToDomain(&models[i]))
	}
	return batches, total, nil
}
