// Package events publishes batch lifecycle events for downstream consumers
// (progress dashboards, webhooks). Publishing is fire-and-forget from the
// engine's point of view: a broker outage degrades observability, never a
// batch run.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/reelforge/clip-engine/internal/domain"
)

// BatchEvent is emitted on every batch status change.
type BatchEvent struct {
	BatchID    string             `json:"batchId"`
	Status     domain.BatchStatus `json:"status"`
	Total      int                `json:"total"`
	Completed  int                `json:"completed"`
	Failed     int                `json:"failed"`
	OccurredAt time.Time          `json:"occurredAt"`
}

func (e BatchEvent) Validate() error {
	if strings.TrimSpace(e.BatchID) == "" {
		return fmt.Errorf("batchId is required")
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("invalid batch status %q", e.Status)
	}
	return nil
}

// RoutingKey returns the broker routing key, e.g. batch.partial.
func (e BatchEvent) RoutingKey() string {
	return "batch." + strings.ToLower(e.Status.String())
}

// Publisher publishes lifecycle events.
type Publisher interface {
	PublishBatchEvent(ctx context.Context, evt BatchEvent) error
	Close() error
}

// Nop discards events. Used when no broker is configured and in tests.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) PublishBatchEvent(context.Context, BatchEvent) error { return nil }
func (Nop) Close() error                                        { return nil }
