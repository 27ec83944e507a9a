package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testBatch(t *testing.T, contents ...string) *Batch {
	t.Helper()

	b := NewBatch("test", BatchConfig{
		Platform:          PlatformTikTok,
		TargetDurationSec: 45,
		Voice:             "narrator",
		Language:          "en",
	}, 2, time.Unix(1_700_000_000, 0))

	for _, c := range contents {
		if _, err := b.AddItem(c); err != nil {
			t.Fatalf("AddItem(%q) error = %v", c, err)
		}
	}
	return b
}

func TestBatchLockValidation(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_100, 0)

	tests := []struct {
		name    string
		batch   func(t *testing.T) *Batch
		wantErr error
	}{
		{
			name:  "valid batch locks",
			batch: func(t *testing.T) *Batch { return testBatch(t, "a story", "another story") },
		},
		{
			name:    "zero items",
			batch:   func(t *testing.T) *Batch { return testBatch(t) },
			wantErr: ErrValidation,
		},
		{
			name: "blank item content",
			batch: func(t *testing.T) *Batch {
				b := testBatch(t, "a story")
				b.Items = append(b.Items, BatchItem{ID: "blank", Order: 1, Content: "   ", Status: ItemStatusPending})
				return b
			},
			wantErr: ErrValidation,
		},
		{
			name: "unknown platform",
			batch: func(t *testing.T) *Batch {
				b := testBatch(t, "a story")
				b.Config.Platform = Platform("MYSPACE")
				return b
			},
			wantErr: ErrValidation,
		},
		{
			name: "duration exceeds platform max",
			batch: func(t *testing.T) *Batch {
				b := testBatch(t, "a story")
				b.Config.Platform = PlatformInstagramReels
				b.Config.TargetDurationSec = 120
				return b
			},
			wantErr: ErrValidation,
		},
		{
			name: "already locked",
			batch: func(t *testing.T) *Batch {
				b := testBatch(t, "a story")
				if err := b.Lock(now); err != nil {
					t.Fatalf("Lock() error = %v", err)
				}
				return b
			},
			wantErr: ErrState,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := tt.batch(t)
			err := b.Lock(now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Lock() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lock() unexpected error = %v", err)
			}
			if b.Status != BatchStatusLocked {
				t.Fatalf("status = %s, want LOCKED", b.Status)
			}
			if b.LockedAt == nil || !b.LockedAt.Equal(now) {
				t.Fatalf("LockedAt = %v, want %v", b.LockedAt, now)
			}
		})
	}
}

func TestBatchLockRejectsEditing(t *testing.T) {
	t.Parallel()

	b := testBatch(t, "a story")
	if err := b.Lock(time.Now()); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	if _, err := b.AddItem("late item"); !errors.Is(err, ErrState) {
		t.Fatalf("AddItem() error = %v, want ErrState", err)
	}
	if err := b.RemoveItem(b.Items[0].ID); !errors.Is(err, ErrState) {
		t.Fatalf("RemoveItem() error = %v, want ErrState", err)
	}
	voice := "other"
	if err := b.ApplyConfigPatch(ConfigPatch{Voice: &voice}); !errors.Is(err, ErrState) {
		t.Fatalf("ApplyConfigPatch() error = %v, want ErrState", err)
	}
}

func TestBatchUnlock(t *testing.T) {
	t.Parallel()

	b := testBatch(t, "a story")
	if err := b.Unlock(time.Now()); !errors.Is(err, ErrState) {
		t.Fatalf("Unlock() on DRAFT error = %v, want ErrState", err)
	}

	if err := b.Lock(time.Now()); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := b.Unlock(time.Now()); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if b.Status != BatchStatusDraft {
		t.Fatalf("status = %s, want DRAFT", b.Status)
	}
	if b.LockedAt != nil {
		t.Fatal("LockedAt should be cleared after unlock")
	}

	// Editing is legal again.
	if _, err := b.AddItem("second story"); err != nil {
		t.Fatalf("AddItem() after unlock error = %v", err)
	}
}

func TestBatchBeginProcessingLegality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  BatchStatus
		wantErr bool
	}{
		{BatchStatusLocked, false},
		{BatchStatusPartial, false},
		{BatchStatusDraft, true},
		{BatchStatusProcessing, true},
		{BatchStatusComplete, true},
		{BatchStatusFailed, true},
		{BatchStatusCancelled, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.status.String(), func(t *testing.T) {
			t.Parallel()

			b := testBatch(t, "a story")
			b.Status = tt.status
			err := b.BeginProcessing(time.Now())
			if tt.wantErr {
				if !errors.Is(err, ErrState) {
					t.Fatalf("BeginProcessing() error = %v, want ErrState", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("BeginProcessing() error = %v", err)
			}
			if b.Status != BatchStatusProcessing {
				t.Fatalf("status = %s, want PROCESSING", b.Status)
			}
		})
	}
}

func TestBatchRemoveItemRenumbers(t *testing.T) {
	t.Parallel()

	b := testBatch(t, "one", "two", "three")
	if err := b.RemoveItem(b.Items[1].ID); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}

	if len(b.Items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(b.Items))
	}
	for i := range b.Items {
		if b.Items[i].Order != i {
			t.Fatalf("item %d order = %d, want %d", i, b.Items[i].Order, i)
		}
	}
	if b.Items[0].Content != "one" || b.Items[1].Content != "three" {
		t.Fatalf("items = %q,%q, want one,three", b.Items[0].Content, b.Items[1].Content)
	}

	if err := b.RemoveItem("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RemoveItem(missing) error = %v, want ErrNotFound", err)
	}
}

func TestComputeStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		statuses []ItemStatus
		want     BatchStatus
	}{
		{"all complete", []ItemStatus{ItemStatusComplete, ItemStatusComplete}, BatchStatusComplete},
		{"one failed all terminal", []ItemStatus{ItemStatusComplete, ItemStatusFailed}, BatchStatusPartial},
		{"all failed", []ItemStatus{ItemStatusFailed, ItemStatusFailed}, BatchStatusPartial},
		{"still processing", []ItemStatus{ItemStatusComplete, ItemStatusProcessing}, BatchStatusProcessing},
		{"pending remains", []ItemStatus{ItemStatusComplete, ItemStatusPending}, BatchStatusProcessing},
		{"skipped counts as settled", []ItemStatus{ItemStatusComplete, ItemStatusSkipped}, BatchStatusComplete},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			items := make([]BatchItem, len(tt.statuses))
			for i, s := range tt.statuses {
				items[i] = BatchItem{Order: i, Status: s}
			}
			if got := ComputeStatus(items); got != tt.want {
				t.Fatalf("ComputeStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	t.Parallel()

	b := testBatch(t, "one", "two")
	b.Status = BatchStatusProcessing
	b.Items[0].Status = ItemStatusComplete
	b.Items[1].Status = ItemStatusFailed

	now := time.Unix(1_700_000_200, 0)
	first := b.Recompute(now)
	completedAt := b.CompletedAt
	second := b.Recompute(now.Add(time.Minute))

	if first != second || first != BatchStatusPartial {
		t.Fatalf("Recompute() = %s then %s, want PARTIAL both times", first, second)
	}
	if b.CompletedAt == nil || !b.CompletedAt.Equal(*completedAt) {
		t.Fatalf("CompletedAt changed on idempotent recompute: %v vs %v", b.CompletedAt, completedAt)
	}
}

func TestBatchCountsInvariant(t *testing.T) {
	t.Parallel()

	b := testBatch(t, "one", "two", "three", "four")
	b.Items[0].Status = ItemStatusComplete
	b.Items[1].Status = ItemStatusFailed
	b.Items[2].Status = ItemStatusProcessing

	total, completed, failed := b.Counts()
	if total != 4 || completed != 1 || failed != 1 {
		t.Fatalf("Counts() = (%d,%d,%d), want (4,1,1)", total, completed, failed)
	}
	if completed+failed > total {
		t.Fatal("completed+failed exceeds total")
	}
}

func TestResetFailedItems(t *testing.T) {
	t.Parallel()

	t.Run("partial batch resets failed to pending", func(t *testing.T) {
		t.Parallel()

		b := testBatch(t, "one", "two")
		b.Status = BatchStatusPartial
		b.Items[0].Status = ItemStatusComplete
		msg := "generator exploded"
		b.Items[1].Status = ItemStatusFailed
		b.Items[1].LastError = &msg

		reset, err := b.ResetFailedItems(time.Now())
		if err != nil {
			t.Fatalf("ResetFailedItems() error = %v", err)
		}
		if reset != 1 {
			t.Fatalf("reset = %d, want 1", reset)
		}
		if b.Items[1].Status != ItemStatusPending || b.Items[1].LastError != nil {
			t.Fatalf("failed item not reset: %+v", b.Items[1])
		}
	})

	t.Run("complete batch rejects retry", func(t *testing.T) {
		t.Parallel()

		b := testBatch(t, "one")
		b.Status = BatchStatusComplete
		b.Items[0].Status = ItemStatusComplete

		_, err := b.ResetFailedItems(time.Now())
		if !errors.Is(err, ErrState) {
			t.Fatalf("ResetFailedItems() error = %v, want ErrState", err)
		}
		if got, want := err.Error(), "no failed items to retry in complete batch"; !strings.Contains(got, want) {
			t.Fatalf("error %q does not mention %q", got, want)
		}
	})
}

func TestBatchCancelSkipsUnstartedItems(t *testing.T) {
	t.Parallel()

	b := testBatch(t, "one", "two", "three")
	b.Status = BatchStatusProcessing
	b.Items[0].Status = ItemStatusProcessing
	b.Items[1].Status = ItemStatusQueued

	if err := b.Cancel(time.Now()); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if b.Status != BatchStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", b.Status)
	}
	if b.Items[0].Status != ItemStatusProcessing {
		t.Fatal("in-flight item must be left to finish")
	}
	if b.Items[1].Status != ItemStatusSkipped || b.Items[2].Status != ItemStatusSkipped {
		t.Fatalf("unstarted items = %s,%s, want SKIPPED both", b.Items[1].Status, b.Items[2].Status)
	}

	if err := b.Cancel(time.Now()); !errors.Is(err, ErrState) {
		t.Fatalf("Cancel() twice error = %v, want ErrState", err)
	}
}
