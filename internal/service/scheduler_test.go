package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reelforge/clip-engine/internal/domain"
	"github.com/reelforge/clip-engine/internal/repository"
)

type runnerFixture struct {
	*pipelineFixture
	runner *BatchRunner
}

func newRunnerFixture(t *testing.T, unitTimeout time.Duration) *runnerFixture {
	t.Helper()

	fixture := newPipelineFixture()
	pipeline := fixture.build(t)

	runner, err := NewBatchRunner(fixture.store, fixture.store.Units(), pipeline, unitTimeout, 2, nil)
	if err != nil {
		t.Fatalf("NewBatchRunner() error = %v", err)
	}
	return &runnerFixture{pipelineFixture: fixture, runner: runner}
}

func newProcessingBatch(t *testing.T, store *repository.MemoryStore, maxParallel, itemCount int) *domain.Batch {
	t.Helper()

	now := time.Now()
	batch := domain.NewBatch("nightly horror drop", testBatchConfig(), maxParallel, now)
	for i := 0; i < itemCount; i++ {
		if _, err := batch.AddItem(fmt.Sprintf("item-%d", i+1)); err != nil {
			t.Fatalf("AddItem() error = %v", err)
		}
	}
	if err := batch.Lock(now); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := batch.BeginProcessing(now); err != nil {
		t.Fatalf("BeginProcessing() error = %v", err)
	}
	if err := store.Create(context.Background(), batch); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return batch
}

func TestBatchRunnerRequiresProcessingBatch(t *testing.T) {
	t.Parallel()

	fixture := newRunnerFixture(t, time.Minute)

	batch := domain.NewBatch("draft", testBatchConfig(), 2, time.Now())
	_, err := fixture.runner.Run(context.Background(), batch, make(chan struct{}))
	if !errors.Is(err, domain.ErrState) {
		t.Fatalf("Run() error = %v, want ErrState", err)
	}
}

func TestBatchRunnerAllItemsComplete(t *testing.T) {
	t.Parallel()

	fixture := newRunnerFixture(t, time.Minute)
	batch := newProcessingBatch(t, fixture.store, 2, 3)

	settled, err := fixture.runner.Run(context.Background(), batch, make(chan struct{}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if settled.Status != domain.BatchStatusComplete {
		t.Fatalf("status = %s, want COMPLETE", settled.Status)
	}
	if settled.CompletedAt == nil {
		t.Fatal("settled batch should record completion time")
	}
	for i := range settled.Items {
		item := settled.Items[i]
		if item.Status != domain.ItemStatusComplete {
			t.Fatalf("item %d status = %s, want COMPLETE", i, item.Status)
		}
		if item.UnitID == nil || item.OutputPath == nil {
			t.Fatalf("item %d missing unit id or output path", i)
		}
	}

	persisted, err := fixture.store.GetByID(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if persisted.Status != domain.BatchStatusComplete {
		t.Fatalf("persisted status = %s, want COMPLETE", persisted.Status)
	}
}

func TestBatchRunnerIsolatesSingleItemFailure(t *testing.T) {
	t.Parallel()

	fixture := newRunnerFixture(t, time.Minute)
	fixture.content.generateFn = func(_ context.Context, cfg domain.UnitConfig) ([]domain.Scene, error) {
		if cfg.Content == "item-3" {
			return nil, errors.New("model raised on item-3")
		}
		return testScenes(cfg.TargetDurationSec), nil
	}

	batch := newProcessingBatch(t, fixture.store, 2, 5)

	settled, err := fixture.runner.Run(context.Background(), batch, make(chan struct{}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if settled.Status != domain.BatchStatusPartial {
		t.Fatalf("status = %s, want PARTIAL", settled.Status)
	}

	total, completed, failed := settled.Counts()
	if total != 5 || completed != 4 || failed != 1 {
		t.Fatalf("counts = %d/%d/%d, want 5/4/1", total, completed, failed)
	}

	failedItems := settled.FailedItems()
	if len(failedItems) != 1 {
		t.Fatalf("failed items = %d, want 1", len(failedItems))
	}
	item := failedItems[0]
	if item.Content != "item-3" {
		t.Fatalf("failed item content = %q, want item-3", item.Content)
	}
	if item.LastError == nil || !strings.Contains(*item.LastError, "model raised on item-3") {
		t.Fatalf("LastError = %v, want the collaborator message", item.LastError)
	}
	if item.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", item.RetryCount)
	}
	if item.UnitID == nil {
		t.Fatal("failed item should still reference its unit for audit")
	}
}

func TestBatchRunnerRetryPassCompletesBatch(t *testing.T) {
	t.Parallel()

	fixture := newRunnerFixture(t, time.Minute)

	var mu sync.Mutex
	failedOnce := false
	fixture.content.generateFn = func(_ context.Context, cfg domain.UnitConfig) ([]domain.Scene, error) {
		mu.Lock()
		defer mu.Unlock()
		if cfg.Content == "item-2" && !failedOnce {
			failedOnce = true
			return nil, errors.New("transient gateway error")
		}
		return testScenes(cfg.TargetDurationSec), nil
	}

	batch := newProcessingBatch(t, fixture.store, 2, 3)

	settled, err := fixture.runner.Run(context.Background(), batch, make(chan struct{}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if settled.Status != domain.BatchStatusPartial {
		t.Fatalf("status after first pass = %s, want PARTIAL", settled.Status)
	}

	now := time.Now()
	reset, err := settled.ResetFailedItems(now)
	if err != nil {
		t.Fatalf("ResetFailedItems() error = %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset = %d, want 1", reset)
	}
	if err := settled.BeginProcessing(now); err != nil {
		t.Fatalf("BeginProcessing() error = %v", err)
	}

	resettled, err := fixture.runner.Run(context.Background(), settled, make(chan struct{}))
	if err != nil {
		t.Fatalf("Run() retry pass error = %v", err)
	}
	if resettled.Status != domain.BatchStatusComplete {
		t.Fatalf("status after retry pass = %s, want COMPLETE", resettled.Status)
	}

	// Completed items from the first pass were not re-dispatched.
	for i := range resettled.Items {
		if resettled.Items[i].Status != domain.ItemStatusComplete {
			t.Fatalf("item %d status = %s, want COMPLETE", i, resettled.Items[i].Status)
		}
	}
}

func TestBatchRunnerCancelSkipsUndispatchedItems(t *testing.T) {
	t.Parallel()

	fixture := newRunnerFixture(t, time.Minute)
	batch := newProcessingBatch(t, fixture.store, 2, 4)

	cancelCh := make(chan struct{})
	close(cancelCh)

	settled, err := fixture.runner.Run(context.Background(), batch, cancelCh)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if settled.Status != domain.BatchStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", settled.Status)
	}
	for i := range settled.Items {
		if settled.Items[i].Status != domain.ItemStatusSkipped {
			t.Fatalf("item %d status = %s, want SKIPPED", i, settled.Items[i].Status)
		}
	}
}

func TestBatchRunnerTimeoutFailsItem(t *testing.T) {
	t.Parallel()

	fixture := newRunnerFixture(t, 20*time.Millisecond)
	fixture.content.generateFn = func(ctx context.Context, cfg domain.UnitConfig) ([]domain.Scene, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	batch := newProcessingBatch(t, fixture.store, 1, 1)

	settled, err := fixture.runner.Run(context.Background(), batch, make(chan struct{}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if settled.Status != domain.BatchStatusPartial {
		t.Fatalf("status = %s, want PARTIAL", settled.Status)
	}

	item := settled.Items[0]
	if item.Status != domain.ItemStatusFailed {
		t.Fatalf("item status = %s, want FAILED", item.Status)
	}
	if item.LastError == nil || !strings.Contains(*item.LastError, "budget") {
		t.Fatalf("LastError = %v, want timeout budget message", item.LastError)
	}
}

func TestBatchRunnerRespectsMaxParallel(t *testing.T) {
	t.Parallel()

	fixture := newRunnerFixture(t, time.Minute)

	var mu sync.Mutex
	inFlight, peak := 0, 0
	fixture.content.generateFn = func(_ context.Context, cfg domain.UnitConfig) ([]domain.Scene, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return testScenes(cfg.TargetDurationSec), nil
	}

	batch := newProcessingBatch(t, fixture.store, 2, 6)

	if _, err := fixture.runner.Run(context.Background(), batch, make(chan struct{})); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want at most 2", peak)
	}
	if peak < 2 {
		t.Logf("peak concurrency = %d; scheduling never overlapped", peak)
	}
}
