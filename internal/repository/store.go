// Package repository defines the persistence ports for batches and units and
// their gorm-backed and in-memory implementations. The store is the single
// source of truth after each mutation: services persist a full snapshot and
// re-read rather than trusting in-memory copies across goroutines.
package repository

import (
	"context"
	"time"

	"github.com/reelforge/clip-engine/internal/domain"
)

// ListParams filters and pages batch listings.
type ListParams struct {
	Status   *domain.BatchStatus
	Platform *domain.Platform
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// BatchRepository persists batches together with their items. Save is an
// idempotent full-snapshot upsert; writes are visible to the next Get within
// the same process.
type BatchRepository interface {
	Create(ctx context.Context, batch *domain.Batch) error
	Save(ctx context.Context, batch *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	List(ctx context.Context, params ListParams) ([]domain.Batch, int64, error)
}

// UnitRepository persists generation units. Units outlive their batch item
// for audit, so deletes cascade from batches but never to units.
type UnitRepository interface {
	Save(ctx context.Context, unit *domain.Unit) error
	GetByID(ctx context.Context, id string) (*domain.Unit, error)
}
