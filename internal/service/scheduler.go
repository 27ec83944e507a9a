package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reelforge/clip-engine/internal/domain"
	"github.com/reelforge/clip-engine/internal/observability"
	"github.com/reelforge/clip-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultUnitTimeout = 5 * time.Minute

// BatchRunner fans a batch's work set out to the generation pipeline, at most
// MaxParallel units in flight. Failure handling is fail-isolated: every item
// settles independently and one item's error never cancels a sibling. The
// aggregate batch status is recomputed exactly once, after the whole set has
// settled, from the authoritative item states.
//
// All writes to the shared batch snapshot are serialized through a per-run
// gate so concurrent item completions never interleave a partial update.
type BatchRunner struct {
	batches     repository.BatchRepository
	units       repository.UnitRepository
	pipeline    *Pipeline
	logger      *zap.Logger
	metrics     *observability.Metrics
	unitTimeout time.Duration
	maxRetries  int
	now         func() time.Time
}

func NewBatchRunner(
	batches repository.BatchRepository,
	units repository.UnitRepository,
	pipeline *Pipeline,
	unitTimeout time.Duration,
	maxRetries int,
	logger *zap.Logger,
) (*BatchRunner, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if units == nil {
		return nil, fmt.Errorf("unit repository is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if unitTimeout <= 0 {
		unitTimeout = defaultUnitTimeout
	}
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchRunner{
		batches:     batches,
		units:       units,
		pipeline:    pipeline,
		logger:      logger,
		unitTimeout: unitTimeout,
		maxRetries:  maxRetries,
		now:         time.Now,
	}, nil
}

func (r *BatchRunner) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// itemResult is the per-worker outcome record. Collecting these instead of
// returning errors from workers is what makes failure isolation structural:
// the supervisor always waits for the full set.
type itemResult struct {
	itemID    string
	unitID    string
	outputRef string
	err       error
}

// Run processes every PENDING item of a PROCESSING batch and returns the
// settled batch. A closed cancel channel stops further dispatch; in-flight
// items run to completion. Only persistence failures are returned as errors.
func (r *BatchRunner) Run(ctx context.Context, batch *domain.Batch, cancelCh <-chan struct{}) (*domain.Batch, error) {
	if batch.Status != domain.BatchStatusProcessing {
		return nil, fmt.Errorf("%w: cannot run %s batch", domain.ErrState, batch.Status)
	}

	work := batch.PendingItemIDs()
	gate := &sync.Mutex{}

	// Admission mark: the whole work set is QUEUED before dispatch begins.
	gate.Lock()
	for _, itemID := range work {
		if item, err := batch.ItemByID(itemID); err == nil {
			item.Status = domain.ItemStatusQueued
		}
	}
	err := r.batches.Save(ctx, batch)
	gate.Unlock()
	if err != nil {
		return nil, err
	}

	results := make([]itemResult, len(work))
	var persistMu sync.Mutex
	var persistErr error
	recordPersistErr := func(err error) {
		persistMu.Lock()
		if persistErr == nil {
			persistErr = err
		}
		persistMu.Unlock()
	}

	g := &errgroup.Group{}
	g.SetLimit(batch.MaxParallel)

	cancelled := func() bool {
		select {
		case <-cancelCh:
			return true
		default:
			return false
		}
	}

	for i, itemID := range work {
		if cancelled() {
			break
		}

		i, itemID := i, itemID
		g.Go(func() error {
			if cancelled() {
				return nil
			}
			results[i] = r.processItem(ctx, batch, gate, itemID, recordPersistErr)
			return nil
		})
	}

	// Workers never return errors; Wait is purely a join.
	_ = g.Wait()

	gate.Lock()
	if cancelled() {
		if err := batch.Cancel(r.now()); err != nil {
			r.logger.Warn("cancel on settled batch ignored",
				zap.String("batchId", batch.ID),
				zap.Error(err),
			)
		}
	} else {
		batch.Recompute(r.now())
	}
	saveErr := r.batches.Save(ctx, batch)
	gate.Unlock()
	if saveErr != nil {
		recordPersistErr(saveErr)
	}

	total, completed, failed := batch.Counts()
	r.logger.Info("batch run settled",
		zap.String("batchId", batch.ID),
		zap.String("status", batch.Status.String()),
		zap.Int("total", total),
		zap.Int("completed", completed),
		zap.Int("failed", failed),
	)

	return batch, persistErr
}

func (r *BatchRunner) processItem(
	ctx context.Context,
	batch *domain.Batch,
	gate *sync.Mutex,
	itemID string,
	recordPersistErr func(error),
) itemResult {
	result := itemResult{itemID: itemID}

	var content string
	gate.Lock()
	item, err := batch.ItemByID(itemID)
	if err == nil {
		item.Status = domain.ItemStatusProcessing
		content = item.Content
		err = r.batches.Save(ctx, batch)
	}
	gate.Unlock()
	if err != nil {
		recordPersistErr(err)
		result.err = err
		return result
	}

	cfg := domain.UnitConfigFromBatch(batch.Config, content, r.maxRetries)
	unit := domain.NewUnit(cfg, &batch.ID, &itemID, r.now())
	result.unitID = unit.ID

	if r.metrics != nil {
		r.metrics.IncSchedulerInFlight()
		defer r.metrics.DecSchedulerInFlight()
	}

	runCtx, cancel := context.WithTimeout(ctx, r.unitTimeout)
	defer cancel()

	outputRef, execErr := r.pipeline.Execute(runCtx, unit)
	if execErr != nil && isTimeout(execErr) {
		execErr = fmt.Errorf("%w: unit exceeded %s budget: %v", domain.ErrTimeout, r.unitTimeout, execErr)
	}
	result.outputRef = outputRef
	result.err = execErr

	now := r.now()
	gate.Lock()
	defer gate.Unlock()

	item, err = batch.ItemByID(itemID)
	if err != nil {
		recordPersistErr(err)
		return result
	}

	item.UnitID = &unit.ID
	if execErr == nil {
		item.Status = domain.ItemStatusComplete
		item.OutputPath = &result.outputRef
		item.LastError = nil
		item.CompletedAt = &now
	} else {
		msg := execErr.Error()
		item.Status = domain.ItemStatusFailed
		item.LastError = &msg
		item.RetryCount++
		item.CompletedAt = &now
		r.logger.Warn("item failed, siblings unaffected",
			zap.String("batchId", batch.ID),
			zap.String("itemId", itemID),
			zap.Error(execErr),
		)
	}

	if err := r.batches.Save(ctx, batch); err != nil {
		recordPersistErr(err)
	}
	return result
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout)
}
