package matchmaking

import (
	"chatroulette/backend/internal/models"
	"chatroulette/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultPostMatchTimeout bounds the background post-match hooks.
const DefaultPostMatchTimeout = 30 * time.Second

// Match is a committed pairing.
type Match struct {
	User1 int64
	User2 int64
	At    time.Time
}

// Engine pairs compatible users from the waiting pool, one match per tick.
type Engine struct {
	Store     storage.Storage
	Pool      *WaitingPool
	Evaluator *Evaluator
	Hooks     Hooks
	Sessions  SessionLog // optional
	Metrics   *Metrics
	Logger    *zap.Logger
	Now       func() time.Time

	PostMatchTimeout time.Duration

	post sync.WaitGroup
}

// NewEngine creates an engine with the default gender rule, no-op metrics
// registration and the wall clock.
func NewEngine(store storage.Storage, hooks Hooks, logger *zap.Logger) *Engine {
	if hooks == nil {
		hooks = NopHooks{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Store:            store,
		Pool:             NewWaitingPool(store, time.Now),
		Evaluator:        NewEvaluator(),
		Hooks:            hooks,
		Metrics:          NewMetrics(nil),
		Logger:           logger,
		Now:              time.Now,
		PostMatchTimeout: DefaultPostMatchTimeout,
	}
}

// Tick runs one pairing attempt. It returns the committed match, or nil when
// nothing was paired. A returned error means the tick aborted without a
// partial commit; the next tick retries from a fresh snapshot.
func (e *Engine) Tick(ctx context.Context) (*Match, error) {
	ids, err := e.Pool.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot pool: %w", err)
	}
	e.Metrics.QueueSize.Set(float64(len(ids)))
	if len(ids) < 2 {
		return nil, nil
	}

	u1, u2, err := e.findCandidates(ctx, ids)
	if err != nil || u2 == nil {
		return nil, err
	}
	log := e.Logger.With(zap.Int64("user1", u1.ID), zap.Int64("user2", u2.ID))

	started := time.Now()
	err = e.runBoth(ctx, e.Hooks.PreMatch, u1.ID, u2.ID)
	e.Metrics.PreMatch.Observe(time.Since(started).Seconds())
	if err != nil {
		e.Metrics.Abandoned.WithLabelValues(AbandonHookFailed).Inc()
		return nil, fmt.Errorf("pre-match hook for %d/%d: %w", u1.ID, u2.ID, err)
	}

	// The hooks may have taken a while; either user could have left meanwhile.
	ids, err = e.Pool.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("re-snapshot pool: %w", err)
	}
	if !contains(ids, u1.ID) || !contains(ids, u2.ID) {
		e.Metrics.Abandoned.WithLabelValues(AbandonLeftQueue).Inc()
		log.Info("Candidate left the queue during pre-match, attempt abandoned")
		return nil, nil
	}

	if err := e.Store.CommitMatch(ctx, u1.ID, u2.ID); err != nil {
		if errors.Is(err, storage.ErrNotQueued) {
			e.Metrics.Abandoned.WithLabelValues(AbandonLeftQueue).Inc()
			log.Info("Candidate left the queue before commit, attempt abandoned")
			return nil, nil
		}
		return nil, fmt.Errorf("commit match %d/%d: %w", u1.ID, u2.ID, err)
	}

	match := &Match{User1: u1.ID, User2: u2.ID, At: e.Now()}
	e.Metrics.Matches.Inc()
	log.Info("Match committed")

	if e.Sessions != nil {
		if err := e.Sessions.RecordSession(ctx, match.User1, match.User2, match.At); err != nil {
			log.Warn("Failed to record chat session", zap.Error(err))
		}
	}

	e.firePostMatch(ctx, match)
	return match, nil
}

// findCandidates picks the head of the pool and the first compatible user
// after it. u2 is nil when nobody fits.
func (e *Engine) findCandidates(ctx context.Context, ids []int64) (*models.User, *models.User, error) {
	u1, err := e.Store.GetUser(ctx, ids[0])
	if errors.Is(err, storage.ErrUserNotFound) {
		e.Logger.Warn("Queue head has no user record, waiting for cleanup", zap.Int64("user", ids[0]))
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load user %d: %w", ids[0], err)
	}

	for _, id := range ids[1:] {
		cand, err := e.Store.GetUser(ctx, id)
		if errors.Is(err, storage.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("load user %d: %w", id, err)
		}
		if e.Evaluator.Compatible(*u1, *cand) {
			return u1, cand, nil
		}
	}
	return u1, nil, nil
}

// runBoth invokes fn for both users concurrently and waits for both.
// A panicking hook is reported as an error.
func (e *Engine) runBoth(ctx context.Context, fn func(context.Context, int64) error, a, b int64) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range []int64{a, b} {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("hook for %d panicked: %v", id, r)
				}
			}()
			return fn(gctx, id)
		})
	}
	return g.Wait()
}

func (e *Engine) firePostMatch(ctx context.Context, m *Match) {
	e.post.Add(1)
	go func() {
		defer e.post.Done()

		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.PostMatchTimeout)
		defer cancel()
		if err := e.runBoth(pctx, e.Hooks.PostMatch, m.User1, m.User2); err != nil {
			e.Logger.Warn("Post-match hook failed",
				zap.Int64("user1", m.User1), zap.Int64("user2", m.User2), zap.Error(err))
		}
	}()
}

// Wait blocks until every in-flight post-match hook has returned.
func (e *Engine) Wait() {
	e.post.Wait()
}
