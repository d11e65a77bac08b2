package matchmaking

import (
	"chatroulette/backend/internal/models"
	"chatroulette/backend/internal/storage"
	"context"
	"errors"
	"time"
)

// ErrNegativePriority is returned when a queue priority below zero is requested.
var ErrNegativePriority = errors.New("priority must be non-negative")

// WaitingPool is the ordered set of users waiting for a partner, backed by the store.
type WaitingPool struct {
	store storage.Storage
	now   func() time.Time
}

// NewWaitingPool creates a pool over store. A nil now defaults to time.Now.
func NewWaitingPool(store storage.Storage, now func() time.Time) *WaitingPool {
	if now == nil {
		now = time.Now
	}
	return &WaitingPool{store: store, now: now}
}

// Enqueue inserts or replaces the user's entry, stamped with the current time.
func (p *WaitingPool) Enqueue(ctx context.Context, userID int64, priority int) error {
	if priority < 0 {
		return ErrNegativePriority
	}
	return p.store.EnqueueOrReplace(ctx, userID, priority, p.now())
}

// Dequeue removes the user's entry if present.
func (p *WaitingPool) Dequeue(ctx context.Context, userID int64) error {
	return p.store.RemoveFromQueue(ctx, userID)
}

// Snapshot returns queued user IDs in service order from one consistent read.
func (p *WaitingPool) Snapshot(ctx context.Context) ([]int64, error) {
	return p.store.GetQueueOrdered(ctx)
}

// Entries returns the ordered entries with their priority and timestamps.
func (p *WaitingPool) Entries(ctx context.Context) ([]models.QueueEntry, error) {
	return p.store.QueueEntries(ctx)
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
