package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/reelforge/clip-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormUnitRepo is the postgres-backed UnitRepository.
type GormUnitRepo struct {
	db *gorm.DB
}

func NewGormUnitRepo(db *gorm.DB) *GormUnitRepo {
	return &GormUnitRepo{db: db}
}

var _ UnitRepository = (*GormUnitRepo)(nil)

func (r *GormUnitRepo) Save(ctx context.Context, unit *domain.Unit) error {
	model, err := unitModelFromDomain(unit)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(model).Error; err != nil {
		return fmt.Errorf("%w: save unit %s: %v", domain.ErrPersistence, unit.ID, err)
	}
	return nil
}

func (r *GormUnitRepo) GetByID(ctx context.Context, id string) (*domain.Unit, error) {
	var model UnitModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: unit %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load unit %s: %v", domain.ErrPersistence, id, err)
	}

	unit, err := unitModelToDomain(&model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return unit, nil
}
