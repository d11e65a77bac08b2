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

// Service implements the user-facing actions that move a participant
// through idle, searching and chatting.
type Service struct {
	Store    storage.Storage
	Pool     *WaitingPool
	Notifier Notifier   // optional
	Sessions SessionLog // optional
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewService creates a service over store.
func NewService(store storage.Storage, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:    store,
		Pool:     NewWaitingPool(store, time.Now),
		Notifier: notifier,
		Logger:   logger,
		Now:      time.Now,
	}
}

// Start registers the user on first contact and marks them active.
func (s *Service) Start(ctx context.Context, userID int64) (*models.User, error) {
	now := s.Now()
	u, err := s.Store.EnsureUser(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("ensure user %d: %w", userID, err)
	}
	if err := s.Store.Touch(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("touch user %d: %w", userID, err)
	}
	u.LastActiveAt = now
	return u, nil
}

// Touch refreshes the user's activity stamp, creating the record if needed.
func (s *Service) Touch(ctx context.Context, userID int64) error {
	_, err := s.Start(ctx, userID)
	return err
}

// Search drops any current partner, then puts the user in the pool with
// the given priority. A previous queue entry is replaced.
func (s *Service) Search(ctx context.Context, userID int64, priority int) error {
	if priority < 0 {
		return ErrNegativePriority
	}
	if err := s.Touch(ctx, userID); err != nil {
		return err
	}

	// Leave the pool first so a running tick cannot commit the user while
	// the old link is being cleared.
	if err := s.Pool.Dequeue(ctx, userID); err != nil {
		return fmt.Errorf("dequeue %d: %w", userID, err)
	}
	partner, err := s.Store.Unpair(ctx, userID)
	if err != nil {
		return fmt.Errorf("unpair %d: %w", userID, err)
	}
	if partner != 0 {
		s.endSession(ctx, userID)
		s.notify(ctx, partner, NoticePartnerLeft)
	}

	if err := s.Store.SetState(ctx, userID, models.StateSearching); err != nil {
		return fmt.Errorf("set searching %d: %w", userID, err)
	}
	if err := s.Pool.Enqueue(ctx, userID, priority); err != nil {
		return fmt.Errorf("enqueue %d: %w", userID, err)
	}
	s.Logger.Debug("User searching", zap.Int64("user", userID), zap.Int("priority", priority))
	return nil
}

// Stop leaves the pool and any chat. Both sides are notified. It returns
// the former partner, or 0.
func (s *Service) Stop(ctx context.Context, userID int64) (int64, error) {
	if err := s.Touch(ctx, userID); err != nil {
		return 0, err
	}
	if err := s.Pool.Dequeue(ctx, userID); err != nil {
		return 0, fmt.Errorf("dequeue %d: %w", userID, err)
	}
	partner, err := s.Store.Unpair(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("unpair %d: %w", userID, err)
	}

	s.notify(ctx, userID, NoticeDisconnected)
	if partner != 0 {
		s.endSession(ctx, userID)
		s.notify(ctx, partner, NoticePartnerLeft)
	}
	return partner, nil
}

// Next ends the current chat and searches again.
func (s *Service) Next(ctx context.Context, userID int64, priority int) error {
	if _, err := s.Stop(ctx, userID); err != nil {
		return err
	}
	return s.Search(ctx, userID, priority)
}

// Evict removes the user from the pool on an operator's request. A
// searching user goes back to idle; a chatting one is left alone.
func (s *Service) Evict(ctx context.Context, userID int64) error {
	if err := s.Pool.Dequeue(ctx, userID); err != nil {
		return fmt.Errorf("dequeue %d: %w", userID, err)
	}
	state, err := s.Store.GetState(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load state %d: %w", userID, err)
	}
	if state == models.StateSearching {
		return s.Store.SetState(ctx, userID, models.StateIdle)
	}
	return nil
}

// SetGender stores the user's declared gender. GenderUnset clears it.
func (s *Service) SetGender(ctx context.Context, userID int64, gender models.Gender) error {
	if err := s.Touch(ctx, userID); err != nil {
		return err
	}
	return s.Store.SetGender(ctx, userID, gender)
}

// SetRegion stores the user's region and whether they want same-region partners only.
func (s *Service) SetRegion(ctx context.Context, userID int64, region string, filter bool) error {
	if err := s.Touch(ctx, userID); err != nil {
		return err
	}
	return s.Store.SetRegion(ctx, userID, region, filter)
}

// Partner returns the chat partner for message relay, or 0 when the user
// is not chatting.
func (s *Service) Partner(ctx context.Context, userID int64) (int64, error) {
	u, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u.State != models.StateChatting {
		return 0, nil
	}
	return u.Partner(), nil
}

func (s *Service) notify(ctx context.Context, userID int64, n Notice) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, userID, n); err != nil {
		s.Logger.Warn("Notice not delivered", zap.Int64("user", userID),
			zap.String("notice", string(n)), zap.Error(err))
	}
}

func (s *Service) endSession(ctx context.Context, userID int64) {
	if s.Sessions == nil {
		return
	}
	if err := s.Sessions.CloseSession(ctx, userID, s.Now()); err != nil {
		s.Logger.Warn("Failed to close chat session", zap.Int64("user", userID), zap.Error(err))
	}
}
