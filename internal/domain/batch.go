package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BatchStatus represents the lifecycle state of a batch.
type BatchStatus string

const (
	BatchStatusDraft      BatchStatus = "DRAFT"
	BatchStatusLocked     BatchStatus = "LOCKED"
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusPartial    BatchStatus = "PARTIAL"
	BatchStatusComplete   BatchStatus = "COMPLETE"
	BatchStatusFailed     BatchStatus = "FAILED"
	BatchStatusCancelled  BatchStatus = "CANCELLED"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusDraft, BatchStatusLocked, BatchStatusProcessing,
		BatchStatusPartial, BatchStatusComplete, BatchStatusFailed, BatchStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further processing can happen for the batch.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusComplete, BatchStatusCancelled:
		return true
	}
	return false
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// ItemStatus represents the lifecycle state of a single batch item.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "PENDING"
	ItemStatusQueued     ItemStatus = "QUEUED"
	ItemStatusProcessing ItemStatus = "PROCESSING"
	ItemStatusComplete   ItemStatus = "COMPLETE"
	ItemStatusFailed     ItemStatus = "FAILED"
	ItemStatusSkipped    ItemStatus = "SKIPPED"
)

func (s ItemStatus) String() string { return string(s) }

func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusPending, ItemStatusQueued, ItemStatusProcessing,
		ItemStatusComplete, ItemStatusFailed, ItemStatusSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether the item has settled.
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case ItemStatusComplete, ItemStatusFailed, ItemStatusSkipped:
		return true
	}
	return false
}

// BatchConfig is the configuration shared by every item in a batch. It is
// mutable only while the batch is in DRAFT and frozen by Lock.
type BatchConfig struct {
	Platform          Platform
	TargetDurationSec float64
	Voice             string
	Genre             string
	Language          string
	Audience          string
}

// ConfigPatch enumerates the config fields a caller may update while a batch
// is in DRAFT. Nil fields are left untouched; there is no way to express an
// unknown field.
type ConfigPatch struct {
	Platform          *Platform
	TargetDurationSec *float64
	Voice             *string
	Genre             *string
	Language          *string
	Audience          *string
}

// BatchItem is one content unit inside a batch.
type BatchItem struct {
	ID          string
	Order       int
	Content     string
	Status      ItemStatus
	UnitID      *string
	OutputPath  *string
	LastError   *string
	RetryCount  int
	CompletedAt *time.Time
}

// Batch is an ordered collection of items sharing one locked configuration.
// All state transitions go through its methods; callers persist the whole
// batch snapshot after each mutation.
type Batch struct {
	ID          string
	Name        string
	Status      BatchStatus
	Config      BatchConfig
	Items       []BatchItem
	MaxParallel int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LockedAt    *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

const defaultMaxParallel = 4

// NewBatch creates an empty DRAFT batch.
func NewBatch(name string, cfg BatchConfig, maxParallel int, now time.Time) *Batch {
	if maxParallel < 1 {
		maxParallel = defaultMaxParallel
	}
	return &Batch{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Status:      BatchStatusDraft,
		Config:      cfg,
		MaxParallel: maxParallel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AddItem appends a new PENDING item. Legal only in DRAFT.
func (b *Batch) AddItem(content string) (*BatchItem, error) {
	if b.Status != BatchStatusDraft {
		return nil, fmt.Errorf("%w: cannot add item to %s batch", ErrState, b.Status)
	}

	item := BatchItem{
		ID:      uuid.NewString(),
		Order:   len(b.Items),
		Content: strings.TrimSpace(content),
		Status:  ItemStatusPending,
	}
	b.Items = append(b.Items, item)
	return &b.Items[len(b.Items)-1], nil
}

// RemoveItem deletes an item and renumbers the remainder so that order stays
// a dense 0..N-1 sequence. Legal only in DRAFT.
func (b *Batch) RemoveItem(itemID string) error {
	if b.Status != BatchStatusDraft {
		return fmt.Errorf("%w: cannot remove item from %s batch", ErrState, b.Status)
	}

	idx := -1
	for i := range b.Items {
		if b.Items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}

	b.Items = append(b.Items[:idx], b.Items[idx+1:]...)
	for i := range b.Items {
		b.Items[i].Order = i
	}
	return nil
}

// ApplyConfigPatch updates enumerated config fields. Legal only in DRAFT.
func (b *Batch) ApplyConfigPatch(patch ConfigPatch) error {
	if b.Status != BatchStatusDraft {
		return fmt.Errorf("%w: cannot update config of %s batch", ErrState, b.Status)
	}

	if patch.Platform != nil {
		if !patch.Platform.IsValid() {
			return fmt.Errorf("%w: invalid platform %q", ErrValidation, *patch.Platform)
		}
		b.Config.Platform = *patch.Platform
	}
	if patch.TargetDurationSec != nil {
		if *patch.TargetDurationSec <= 0 {
			return fmt.Errorf("%w: target duration must be positive", ErrValidation)
		}
		b.Config.TargetDurationSec = *patch.TargetDurationSec
	}
	if patch.Voice != nil {
		b.Config.Voice = strings.TrimSpace(*patch.Voice)
	}
	if patch.Genre != nil {
		b.Config.Genre = strings.TrimSpace(*patch.Genre)
	}
	if patch.Language != nil {
		b.Config.Language = strings.TrimSpace(*patch.Language)
	}
	if patch.Audience != nil {
		b.Config.Audience = strings.TrimSpace(*patch.Audience)
	}
	return nil
}

// Lock freezes the batch configuration and moves DRAFT to LOCKED after
// validating items and config.
func (b *Batch) Lock(now time.Time) error {
	if b.Status != BatchStatusDraft {
		return fmt.Errorf("%w: cannot lock %s batch", ErrState, b.Status)
	}

	if len(b.Items) == 0 {
		return fmt.Errorf("%w: batch has no items", ErrValidation)
	}
	for i := range b.Items {
		if strings.TrimSpace(b.Items[i].Content) == "" {
			return fmt.Errorf("%w: item %d has blank content", ErrValidation, b.Items[i].Order)
		}
	}

	spec, err := SpecFor(b.Config.Platform)
	if err != nil {
		return err
	}
	if b.Config.TargetDurationSec > spec.MaxDurationSec {
		return fmt.Errorf("%w: target duration %.0fs exceeds %s maximum %.0fs",
			ErrValidation, b.Config.TargetDurationSec, b.Config.Platform, spec.MaxDurationSec)
	}

	b.Status = BatchStatusLocked
	b.LockedAt = &now
	b.UpdatedAt = now
	return nil
}

// Unlock reopens a LOCKED batch for editing. Illegal once processing started.
func (b *Batch) Unlock(now time.Time) error {
	if b.Status != BatchStatusLocked {
		return fmt.Errorf("%w: cannot unlock %s batch", ErrState, b.Status)
	}
	b.Status = BatchStatusDraft
	b.LockedAt = nil
	b.UpdatedAt = now
	return nil
}

// BeginProcessing moves the batch to PROCESSING. Legal only from LOCKED or
// PARTIAL.
func (b *Batch) BeginProcessing(now time.Time) error {
	if b.Status != BatchStatusLocked && b.Status != BatchStatusPartial {
		return fmt.Errorf("%w: cannot start %s batch", ErrState, b.Status)
	}
	b.Status = BatchStatusProcessing
	if b.StartedAt == nil {
		b.StartedAt = &now
	}
	b.CompletedAt = nil
	b.UpdatedAt = now
	return nil
}

// ResetFailedItems moves FAILED items back to PENDING ahead of a retry pass.
// Legal only from PARTIAL or FAILED with at least one failed item.
func (b *Batch) ResetFailedItems(now time.Time) (int, error) {
	if b.Status != BatchStatusPartial && b.Status != BatchStatusFailed {
		return 0, fmt.Errorf("%w: no failed items to retry in %s batch",
			ErrState, strings.ToLower(b.Status.String()))
	}

	reset := 0
	for i := range b.Items {
		if b.Items[i].Status == ItemStatusFailed {
			b.Items[i].Status = ItemStatusPending
			b.Items[i].LastError = nil
			b.Items[i].CompletedAt = nil
			reset++
		}
	}
	if reset == 0 {
		return 0, fmt.Errorf("%w: no failed items to retry", ErrState)
	}
	b.UpdatedAt = now
	return reset, nil
}

// Cancel marks the batch CANCELLED and skips every item that has not started.
// In-flight items are left to run to completion.
func (b *Batch) Cancel(now time.Time) error {
	if b.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot cancel %s batch", ErrState, b.Status)
	}

	for i := range b.Items {
		switch b.Items[i].Status {
		case ItemStatusPending, ItemStatusQueued:
			b.Items[i].Status = ItemStatusSkipped
		}
	}
	b.Status = BatchStatusCancelled
	b.CompletedAt = &now
	b.UpdatedAt = now
	return nil
}

// ComputeStatus derives the aggregate batch status purely from item states.
// All items COMPLETE yields COMPLETE; all items terminal with at least one
// FAILED yields PARTIAL; anything still in flight yields PROCESSING.
func ComputeStatus(items []BatchItem) BatchStatus {
	if len(items) == 0 {
		return BatchStatusComplete
	}

	failed := 0
	for i := range items {
		if !items[i].Status.IsTerminal() {
			return BatchStatusProcessing
		}
		if items[i].Status == ItemStatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return BatchStatusPartial
	}
	return BatchStatusComplete
}

// Recompute applies ComputeStatus to the batch. Idempotent: calling it twice
// with unchanged items writes the same result both times. Cancelled batches
// keep their status.
func (b *Batch) Recompute(now time.Time) BatchStatus {
	if b.Status == BatchStatusCancelled {
		return b.Status
	}

	next := ComputeStatus(b.Items)
	b.Status = next
	if next == BatchStatusComplete || next == BatchStatusPartial {
		if b.CompletedAt == nil {
			b.CompletedAt = &now
		}
	} else {
		b.CompletedAt = nil
	}
	b.UpdatedAt = now
	return next
}

// Counts returns (total, completed, failed) derived from item states. The
// completed+failed <= total invariant holds by construction.
func (b *Batch) Counts() (total, completed, failed int) {
	total = len(b.Items)
	for i := range b.Items {
		switch b.Items[i].Status {
		case ItemStatusComplete:
			completed++
		case ItemStatusFailed:
			failed++
		}
	}
	return total, completed, failed
}

// ItemByID returns a pointer into the batch's item slice.
func (b *Batch) ItemByID(itemID string) (*BatchItem, error) {
	for i := range b.Items {
		if b.Items[i].ID == itemID {
			return &b.Items[i], nil
		}
	}
	return nil, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
}

// PendingItemIDs lists items eligible for dispatch, in order.
func (b *Batch) PendingItemIDs() []string {
	ids := make([]string, 0, len(b.Items))
	for i := range b.Items {
		if b.Items[i].Status == ItemStatusPending {
			ids = append(ids, b.Items[i].ID)
		}
	}
	return ids
}

// FailedItems returns copies of items that ended in FAILED.
func (b *Batch) FailedItems() []BatchItem {
	var failed []BatchItem
	for i := range b.Items {
		if b.Items[i].Status == ItemStatusFailed {
			failed = append(failed, b.Items[i])
		}
	}
	return failed
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	dup := *b
	dup.Items = make([]BatchItem, len(b.Items))
	copy(dup.Items, b.Items)
	for i := range dup.Items {
		dup.Items[i].UnitID = clonePtr(b.Items[i].UnitID)
		dup.Items[i].OutputPath = clonePtr(b.Items[i].OutputPath)
		dup.Items[i].LastError = clonePtr(b.Items[i].LastError)
		dup.Items[i].CompletedAt = clonePtr(b.Items[i].CompletedAt)
	}
	dup.LockedAt = clonePtr(b.LockedAt)
	dup.StartedAt = clonePtr(b.StartedAt)
	dup.CompletedAt = clonePtr(b.CompletedAt)
	return &dup
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
