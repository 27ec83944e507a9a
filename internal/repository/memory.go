package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/reelforge/clip-engine/internal/domain"
)

// MemoryStore keeps batches and units in process memory. It implements both
// repository ports and is the deterministic store used by tests and local
// runs. Snapshots are deep-copied on the way in and out so callers never
// share mutable state through the store.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string]*domain.Batch
	units   map[string]*domain.Unit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[string]*domain.Batch),
		units:   make(map[string]*domain.Unit),
	}
}

var (
	_ BatchRepository = (*MemoryStore)(nil)
	_ UnitRepository  = (*memoryUnitView)(nil)
)

func (s *MemoryStore) Create(ctx context.Context, batch *domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batch.ID]; exists {
		return fmt.Errorf("%w: batch %s already exists", domain.ErrPersistence, batch.ID)
	}
	s.batches[batch.ID] = batch.Clone()
	return nil
}

func (s *MemoryStore) Save(ctx context.Context, batch *domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches[batch.ID] = batch.Clone()
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, id)
	}
	return batch.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, params ListParams) ([]domain.Batch, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Batch
	for _, batch := range s.batches {
		if params.Status != nil && batch.Status != *params.Status {
			continue
		}
		if params.Platform != nil && batch.Config.Platform != *params.Platform {
			continue
		}
		if params.From != nil && batch.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && batch.CreatedAt.After(*params.To) {
			continue
		}
		matched = append(matched, *batch.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []domain.Batch{}, total, nil
	}
	end := min(start+pageSize, len(matched))
	return matched[start:end], total, nil
}

func (s *MemoryStore) SaveUnit(ctx context.Context, unit *domain.Unit) error {
	return s.saveUnit(unit)
}

func (s *MemoryStore) saveUnit(unit *domain.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.units[unit.ID] = cloneUnit(unit)
	return nil
}

func (s *MemoryStore) GetUnitByID(ctx context.Context, id string) (*domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, ok := s.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: unit %s", domain.ErrNotFound, id)
	}
	return cloneUnit(unit), nil
}

// Units returns the unit port view of the store.
func (s *MemoryStore) Units() UnitRepository { return (*memoryUnitView)(s) }

type memoryUnitView MemoryStore

func (v *memoryUnitView) Save(ctx context.Context, unit *domain.Unit) error {
	return (*MemoryStore)(v).saveUnit(unit)
}

func (v *memoryUnitView) GetByID(ctx context.Context, id string) (*domain.Unit, error) {
	return (*MemoryStore)(v).GetUnitByID(ctx, id)
}

func cloneUnit(u *domain.Unit) *domain.Unit {
	if u == nil {
		return nil
	}
	dup := *u
	dup.Scenes = make([]domain.Scene, len(u.Scenes))
	copy(dup.Scenes, u.Scenes)
	if u.Score != nil {
		score := *u.Score
		dup.Score = &score
	}
	if u.ErrorMessage != nil {
		msg := *u.ErrorMessage
		dup.ErrorMessage = &msg
	}
	if u.OutputRef != nil {
		ref := *u.OutputRef
		dup.OutputRef = &ref
	}
	if u.StartedAt != nil {
		ts := *u.StartedAt
		dup.StartedAt = &ts
	}
	if u.CompletedAt != nil {
		ts := *u.CompletedAt
		dup.CompletedAt = &ts
	}
	return &dup
}
