// Package premium maps star balances and VIP status onto matchmaking
// privileges.
package premium

import (
	"chatroulette/backend/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Queue priorities by tier.
const (
	PriorityVIP    = 10
	PriorityPaid   = 5
	PriorityNormal = 0
)

// Purchasable features.
const (
	FeatureGenderFilter   = "gender_filter"
	FeatureRegionFilter   = "region_filter"
	FeaturePriority       = "priority"
	FeatureInstantRematch = "instant_rematch"
	FeatureVIPWeek        = "vip_week"
)

// Prices in stars.
var Prices = map[string]int{
	FeatureGenderFilter:   5,
	FeatureRegionFilter:   3,
	FeaturePriority:       2,
	FeatureInstantRematch: 1,
	FeatureVIPWeek:        10,
}

const vipWeek = 7 * 24 * time.Hour

var (
	ErrNotEnoughStars = errors.New("not enough stars")
	ErrUnknownFeature = errors.New("unknown feature")
)

// Ledger is the durable account store. *storage.Repository implements it.
type Ledger interface {
	GetAccount(ctx context.Context, userID int64) (*models.Account, error)
	ChargeStars(ctx context.Context, userID int64, feature string, price int) (bool, error)
	GrantVIP(ctx context.Context, userID int64, until time.Time, reason string) error
	UnlockFeature(ctx context.Context, userID int64, feature string) error
}

type Service struct {
	Ledger Ledger
	Logger *zap.Logger
	Now    func() time.Time
}

func NewService(ledger Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Ledger: ledger, Logger: logger, Now: time.Now}
}

// Account returns the user's account, creating an empty one on first use.
func (s *Service) Account(ctx context.Context, userID int64) (*models.Account, error) {
	return s.Ledger.GetAccount(ctx, userID)
}

func (s *Service) IsVIP(ctx context.Context, userID int64) (bool, error) {
	acc, err := s.Ledger.GetAccount(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load account %d: %w", userID, err)
	}
	return acc.IsVIP(s.Now()), nil
}

// SearchPriority resolves the queue priority for a search. VIPs always get
// the top tier for free. Others get the paid tier only when they ask for
// it and can pay.
func (s *Service) SearchPriority(ctx context.Context, userID int64, paid bool) (int, error) {
	vip, err := s.IsVIP(ctx, userID)
	if err != nil {
		return PriorityNormal, err
	}
	if vip {
		return PriorityVIP, nil
	}
	if !paid {
		return PriorityNormal, nil
	}
	if err := s.charge(ctx, userID, FeaturePriority); err != nil {
		return PriorityNormal, err
	}
	return PriorityPaid, nil
}

// Purchase buys a one-off feature. VIPs get filters and rematches free;
// the feature is still recorded as unlocked.
func (s *Service) Purchase(ctx context.Context, userID int64, feature string) error {
	if feature == FeatureVIPWeek {
		return s.BuyVIPWeek(ctx, userID)
	}
	if _, ok := Prices[feature]; !ok {
		return ErrUnknownFeature
	}

	vip, err := s.IsVIP(ctx, userID)
	if err != nil {
		return err
	}
	if !vip {
		if err := s.charge(ctx, userID, feature); err != nil {
			return err
		}
	}
	if feature == FeatureGenderFilter || feature == FeatureRegionFilter {
		if err := s.Ledger.UnlockFeature(ctx, userID, feature); err != nil {
			return fmt.Errorf("unlock %s for %d: %w", feature, userID, err)
		}
	}
	return nil
}

// HasFeature reports whether the user may use a filter feature.
func (s *Service) HasFeature(ctx context.Context, userID int64, feature string) (bool, error) {
	acc, err := s.Ledger.GetAccount(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load account %d: %w", userID, err)
	}
	return acc.IsVIP(s.Now()) || acc.HasFeature(feature), nil
}

// BuyVIPWeek charges the weekly price and extends VIP by seven days from
// the later of now and the current expiry.
func (s *Service) BuyVIPWeek(ctx context.Context, userID int64) error {
	acc, err := s.Ledger.GetAccount(ctx, userID)
	if err != nil {
		return fmt.Errorf("load account %d: %w", userID, err)
	}
	if err := s.charge(ctx, userID, FeatureVIPWeek); err != nil {
		return err
	}

	from := s.Now()
	if acc.IsVIP(from) {
		from = *acc.VIPUntil
	}
	return s.Grant(ctx, userID, from.Add(vipWeek), "vip_week")
}

// Grant sets VIP until the given time without charging.
func (s *Service) Grant(ctx context.Context, userID int64, until time.Time, reason string) error {
	if err := s.Ledger.GrantVIP(ctx, userID, until, reason); err != nil {
		return fmt.Errorf("grant vip to %d: %w", userID, err)
	}
	s.Logger.Info("VIP granted", zap.Int64("user", userID), zap.Time("until", until), zap.String("reason", reason))
	return nil
}

func (s *Service) charge(ctx context.Context, userID int64, feature string) error {
	ok, err := s.Ledger.ChargeStars(ctx, userID, feature, Prices[feature])
	if err != nil {
		return fmt.Errorf("charge %s to %d: %w", feature, userID, err)
	}
	if !ok {
		return ErrNotEnoughStars
	}
	return nil
}
