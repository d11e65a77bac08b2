package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMatchInterval   = time.Second
	DefaultCleanupInterval = 5 * time.Second
)

// Scheduler drives the engine and the sweeper from two independent loops.
type Scheduler struct {
	Engine          *Engine
	Sweeper         *Sweeper
	MatchInterval   time.Duration
	CleanupInterval time.Duration
	Metrics         *Metrics
	Logger          *zap.Logger
}

// NewScheduler wires engine and sweeper with the default intervals.
func NewScheduler(engine *Engine, sweeper *Sweeper, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Engine:          engine,
		Sweeper:         sweeper,
		MatchInterval:   DefaultMatchInterval,
		CleanupInterval: DefaultCleanupInterval,
		Metrics:         engine.Metrics,
		Logger:          logger,
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight post-match
// hooks before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Logger.Info("Scheduler started",
		zap.Duration("match_interval", s.MatchInterval),
		zap.Duration("cleanup_interval", s.CleanupInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.loop(gctx, "match", s.MatchInterval, func(ctx context.Context) error {
			_, err := s.Engine.Tick(ctx)
			return err
		})
	})
	g.Go(func() error {
		return s.loop(gctx, "cleanup", s.CleanupInterval, func(ctx context.Context) error {
			_, err := s.Sweeper.Sweep(ctx)
			return err
		})
	})
	err := g.Wait()

	s.Engine.Wait()
	s.Logger.Info("Scheduler stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop runs tick, sleeps interval, and repeats. Tick failures never stop it.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.safeTick(ctx, tick); err != nil && ctx.Err() == nil {
			s.Metrics.TickErrors.WithLabelValues(name).Inc()
			s.Logger.Error("Scheduler tick failed", zap.String("loop", name), zap.Error(err))
		}
		timer.Reset(interval)
	}
}

func (s *Scheduler) safeTick(ctx context.Context, tick func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tick(ctx)
}
