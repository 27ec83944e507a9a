package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/reelforge/clip-engine/internal/domain"
	"github.com/reelforge/clip-engine/internal/events"
	"github.com/reelforge/clip-engine/internal/repository"
	"go.uber.org/zap"
)

// BatchService owns the batch lifecycle: editing in DRAFT, the lock/unlock
// gate, dispatching runs through the BatchRunner, the explicit retry pass,
// and cancellation. Every mutation is persisted before it is visible to a
// caller; the store is the source of truth between operations.
type BatchService struct {
	batches repository.BatchRepository
	runner  *BatchRunner
	events  events.Publisher
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	cancels map[string]chan struct{}
}

func NewBatchService(
	batches repository.BatchRepository,
	runner *BatchRunner,
	publisher events.Publisher,
	logger *zap.Logger,
) (*BatchService, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("batch runner is required")
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchService{
		batches: batches,
		runner:  runner,
		events:  publisher,
		logger:  logger,
		now:     time.Now,
		cancels: make(map[string]chan struct{}),
	}, nil
}

func (s *BatchService) Create(ctx context.Context, name string, cfg domain.BatchConfig, maxParallel int) (*domain.Batch, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: batch name is required", domain.ErrValidation)
	}

	batch := domain.NewBatch(name, cfg, maxParallel, s.now())
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *BatchService) Get(ctx context.Context, id string) (*domain.Batch, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}
	return s.batches.GetByID(ctx, strings.TrimSpace(id))
}

func (s *BatchService) List(ctx context.Context, params repository.ListParams) ([]domain.Batch, int64, error) {
	return s.batches.List(ctx, params)
}

func (s *BatchService) AddItem(ctx context.Context, batchID, content string) (*domain.Batch, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: item content is required", domain.ErrValidation)
	}

	return s.mutate(ctx, batchID, func(batch *domain.Batch) error {
		_, err := batch.AddItem(content)
		return err
	})
}

func (s *BatchService) RemoveItem(ctx context.Context, batchID, itemID string) (*domain.Batch, error) {
	return s.mutate(ctx, batchID, func(batch *domain.Batch) error {
		return batch.RemoveItem(itemID)
	})
}

func (s *BatchService) UpdateConfig(ctx context.Context, batchID string, patch domain.ConfigPatch) (*domain.Batch, error) {
	return s.mutate(ctx, batchID, func(batch *domain.Batch) error {
		return batch.ApplyConfigPatch(patch)
	})
}

func (s *BatchService) Lock(ctx context.Context, batchID string) (*domain.Batch, error) {
	return s.mutate(ctx, batchID, func(batch *domain.Batch) error {
		return batch.Lock(s.now())
	})
}

func (s *BatchService) Unlock(ctx context.Context, batchID string) (*domain.Batch, error) {
	return s.mutate(ctx, batchID, func(batch *domain.Batch) error {
		return batch.Unlock(s.now())
	})
}

// Start moves a LOCKED or PARTIAL batch to PROCESSING and runs its pending
// work set to settlement. It blocks until the run settles; callers wanting a
// background run dispatch it on their own goroutine.
func (s *BatchService) Start(ctx context.Context, batchID string) (*domain.Batch, error) {
	batch, cancelCh, err := s.begin(ctx, batchID)
	if err != nil {
		return nil, err
	}
	defer s.unregisterRun(batch.ID)

	settled, runErr := s.runner.Run(ctx, batch, cancelCh)
	if settled != nil {
		s.publish(ctx, settled)
	}
	return settled, runErr
}

// StartAsync performs the PROCESSING transition synchronously, so illegal
// starts surface to the caller, then settles the run on a background
// goroutine.
func (s *BatchService) StartAsync(ctx context.Context, batchID string) (*domain.Batch, error) {
	batch, cancelCh, err := s.begin(ctx, batchID)
	if err != nil {
		return nil, err
	}

	go func() {
		defer s.unregisterRun(batch.ID)

		runCtx := context.Background()
		settled, runErr := s.runner.Run(runCtx, batch, cancelCh)
		if runErr != nil {
			s.logger.Error("batch run failed",
				zap.String("batchId", batch.ID),
				zap.Error(runErr),
			)
		}
		if settled != nil {
			s.publish(runCtx, settled)
		}
	}()

	return batch, nil
}

func (s *BatchService) begin(ctx context.Context, batchID string) (*domain.Batch, chan struct{}, error) {
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	if err := batch.BeginProcessing(s.now()); err != nil {
		return nil, nil, err
	}
	if err := s.batches.Save(ctx, batch); err != nil {
		return nil, nil, err
	}
	s.publish(ctx, batch)

	cancelCh, err := s.registerRun(batch.ID)
	if err != nil {
		return nil, nil, err
	}
	return batch, cancelCh, nil
}

// RetryFailed resets FAILED items to PENDING. Legal only from PARTIAL or
// FAILED; the caller follows up with Start for the retry pass.
func (s *BatchService) RetryFailed(ctx context.Context, batchID string) (*domain.Batch, int, error) {
	var reset int
	batch, err := s.mutate(ctx, batchID, func(batch *domain.Batch) error {
		n, err := batch.ResetFailedItems(s.now())
		reset = n
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return batch, reset, nil
}

// Cancel stops a batch. With a run in flight it signals the runner, which
// skips undispatched items and finalizes after in-flight items settle; idle
// batches are cancelled and persisted directly.
func (s *BatchService) Cancel(ctx context.Context, batchID string) error {
	s.mu.Lock()
	if ch, active := s.cancels[batchID]; active {
		select {
		case <-ch:
			// already signalled
		default:
			close(ch)
		}
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	batch, err := s.mutate(ctx, batchID, func(batch *domain.Batch) error {
		return batch.Cancel(s.now())
	})
	if err != nil {
		return err
	}
	s.publish(ctx, batch)
	return nil
}

// BatchProgress is the caller-facing progress view.
type BatchProgress struct {
	BatchID   string
	Name      string
	Status    domain.BatchStatus
	Total     int
	Completed int
	Failed    int
	Items     []ItemProgress
}

type ItemProgress struct {
	ItemID     string
	Order      int
	Status     domain.ItemStatus
	UnitID     *string
	OutputPath *string
	LastError  *string
	RetryCount int
}

func (s *BatchService) Progress(ctx context.Context, batchID string) (*BatchProgress, error) {
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}

	total, completed, failed := batch.Counts()
	progress := &BatchProgress{
		BatchID:   batch.ID,
		Name:      batch.Name,
		Status:    batch.Status,
		Total:     total,
		Completed: completed,
		Failed:    failed,
		Items:     make([]ItemProgress, 0, len(batch.Items)),
	}
	for i := range batch.Items {
		item := batch.Items[i]
		progress.Items = append(progress.Items, ItemProgress{
			ItemID:     item.ID,
			Order:      item.Order,
			Status:     item.Status,
			UnitID:     item.UnitID,
			OutputPath: item.OutputPath,
			LastError:  item.LastError,
			RetryCount: item.RetryCount,
		})
	}
	return progress, nil
}

// FailedItems exposes each failed item with its stored error message.
func (s *BatchService) FailedItems(ctx context.Context, batchID string) ([]domain.BatchItem, error) {
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return batch.FailedItems(), nil
}

func (s *BatchService) mutate(ctx context.Context, batchID string, fn func(*domain.Batch) error) (*domain.Batch, error) {
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := fn(batch); err != nil {
		return nil, err
	}
	batch.UpdatedAt = s.now()
	if err := s.batches.Save(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *BatchService) registerRun(batchID string) (chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, active := s.cancels[batchID]; active {
		return nil, fmt.Errorf("%w: batch %s is already running", domain.ErrState, batchID)
	}
	ch := make(chan struct{})
	s.cancels[batchID] = ch
	return ch, nil
}

func (s *BatchService) unregisterRun(batchID string) {
	s.mu.Lock()
	delete(s.cancels, batchID)
	s.mu.Unlock()
}

func (s *BatchService) publish(ctx context.Context, batch *domain.Batch) {
	total, completed, failed := batch.Counts()
	evt := events.BatchEvent{
		BatchID:    batch.ID,
		Status:     batch.Status,
		Total:      total,
		Completed:  completed,
		Failed:     failed,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.PublishBatchEvent(ctx, evt); err != nil {
		s.logger.Error("failed to publish batch event",
			zap.String("batchId", batch.ID),
			zap.String("status", batch.Status.String()),
			zap.Error(err),
		)
	}
}
