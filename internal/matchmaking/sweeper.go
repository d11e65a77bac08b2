package matchmaking

import (
	"chatroulette/backend/internal/models"
	"chatroulette/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultInactiveTimeout is how long a queued user may stay silent.
const DefaultInactiveTimeout = 30 * time.Second

// EvictionReason names the rule that removed a queue entry.
type EvictionReason string

const (
	EvictInactive   EvictionReason = "inactive"
	EvictChatting   EvictionReason = "chatting"
	EvictBrokenLink EvictionReason = "broken_link"
	EvictStale      EvictionReason = "stale"
)

// Eviction records one removed queue entry.
type Eviction struct {
	UserID int64
	Reason EvictionReason
}

// Sweeper removes pool entries that break pool-membership rules. It never
// touches partner links and never pairs anybody.
type Sweeper struct {
	Store           storage.Storage
	Pool            *WaitingPool
	Notifier        Notifier // optional
	InactiveTimeout time.Duration
	Metrics         *Metrics
	Logger          *zap.Logger
	Now             func() time.Time
}

// NewSweeper creates a sweeper with the default inactivity timeout.
func NewSweeper(store storage.Storage, notifier Notifier, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		Store:           store,
		Pool:            NewWaitingPool(store, time.Now),
		Notifier:        notifier,
		InactiveTimeout: DefaultInactiveTimeout,
		Metrics:         NewMetrics(nil),
		Logger:          logger,
		Now:             time.Now,
	}
}

// Sweep runs one pass over the current pool. Per-user read failures are
// logged and skipped; a failed removal is reported in the returned error
// after the pass completes.
func (s *Sweeper) Sweep(ctx context.Context) ([]Eviction, error) {
	ids, err := s.Pool.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot pool: %w", err)
	}

	now := s.Now()
	var (
		evicted []Eviction
		errs    []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}

		reason, ok := s.check(ctx, id, ids, now)
		if !ok {
			continue
		}
		if err := s.Pool.Dequeue(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("evict %d: %w", id, err))
			continue
		}

		evicted = append(evicted, Eviction{UserID: id, Reason: reason})
		s.Metrics.Evictions.WithLabelValues(string(reason)).Inc()
		s.Logger.Info("Evicted queue entry", zap.Int64("user", id), zap.String("reason", string(reason)))

		if reason == EvictInactive && s.Notifier != nil {
			if err := s.Notifier.Notify(ctx, id, NoticeEvictedInactive); err != nil {
				s.Logger.Debug("Eviction notice not delivered", zap.Int64("user", id), zap.Error(err))
			}
		}
	}
	return evicted, errors.Join(errs...)
}

// check returns the first rule the user violates.
func (s *Sweeper) check(ctx context.Context, id int64, pool []int64, now time.Time) (EvictionReason, bool) {
	u, err := s.Store.GetUser(ctx, id)
	if errors.Is(err, storage.ErrUserNotFound) {
		return EvictStale, true
	}
	if err != nil {
		s.Logger.Warn("Sweeper could not load user, skipping", zap.Int64("user", id), zap.Error(err))
		return "", false
	}

	switch {
	case s.inactive(u, now):
		return EvictInactive, true
	case u.State == models.StateChatting:
		return EvictChatting, true
	case u.HasPartner() && !contains(pool, u.Partner()):
		return EvictBrokenLink, true
	case u.State != models.StateSearching:
		return EvictStale, true
	}
	return "", false
}

// inactive ignores users that were never stamped.
func (s *Sweeper) inactive(u *models.User, now time.Time) bool {
	if u.LastActiveAt.IsZero() {
		return false
	}
	return now.Sub(u.LastActiveAt) > s.InactiveTimeout
}
