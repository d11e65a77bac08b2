package premium_test

import (
	"chatroulette/backend/internal/models"
	"chatroulette/backend/internal/premium"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	args := m.Called(ctx, userID)
	acc, _ := args.Get(0).(*models.Account)
	return acc, args.Error(1)
}

func (m *MockLedger) ChargeStars(ctx context.Context, userID int64, feature string, price int) (bool, error) {
	args := m.Called(ctx, userID, feature, price)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) GrantVIP(ctx context.Context, userID int64, until time.Time, reason string) error {
	return m.Called(ctx, userID, until, reason).Error(0)
}

func (m *MockLedger) UnlockFeature(ctx context.Context, userID int64, feature string) error {
	return m.Called(ctx, userID, feature).Error(0)
}

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(l *MockLedger) *premium.Service {
	s := premium.NewService(l, nil)
	s.Now = func() time.Time { return now }
	return s
}

func vipAccount(id int64) *models.Account {
	until := now.Add(24 * time.Hour)
	return &models.Account{UserID: id, VIPUntil: &until}
}

func TestSearchPriority(t *testing.T) {
	ctx := context.Background()

	t.Run("vip is free and on top", func(t *testing.T) {
		l := new(MockLedger)
		l.On("GetAccount", ctx, int64(1)).Return(vipAccount(1), nil)
		p, err := newService(l).SearchPriority(ctx, 1, true)
		require.NoError(t, err)
		assert.Equal(t, premium.PriorityVIP, p)
		l.AssertNotCalled(t, "ChargeStars", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("normal search", func(t *testing.T) {
		l := new(MockLedger)
		l.On("GetAccount", ctx, int64(2)).Return(&models.Account{UserID: 2}, nil)
		p, err := newService(l).SearchPriority(ctx, 2, false)
		require.NoError(t, err)
		assert.Equal(t, premium.PriorityNormal, p)
	})

	t.Run("paid priority charges two stars", func(t *testing.T) {
		l := new(MockLedger)
		l.On("GetAccount", ctx, int64(3)).Return(&models.Account{UserID: 3, Stars: 4}, nil)
		l.On("ChargeStars", ctx, int64(3), premium.FeaturePriority, 2).Return(true, nil).Once()
		p, err := newService(l).SearchPriority(ctx, 3, true)
		require.NoError(t, err)
		assert.Equal(t, premium.PriorityPaid, p)
		l.AssertExpectations(t)
	})

	t.Run("paid priority without stars", func(t *testing.T) {
		l := new(MockLedger)
		l.On("GetAccount", ctx, int64(4)).Return(&models.Account{UserID: 4}, nil)
		l.On("ChargeStars", ctx, int64(4), premium.FeaturePriority, 2).Return(false, nil)
		p, err := newService(l).SearchPriority(ctx, 4, true)
		assert.ErrorIs(t, err, premium.ErrNotEnoughStars)
		assert.Equal(t, premium.PriorityNormal, p)
	})

	t.Run("ledger failure", func(t *testing.T) {
		l := new(MockLedger)
		dbErr := errors.New("connection refused")
		l.On("GetAccount", ctx, int64(5)).Return(nil, dbErr)
		_, err := newService(l).SearchPriority(ctx, 5, true)
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("filter is charged and unlocked", func(t *testing.T) {
		l := new(MockLedger)
		l.On("GetAccount", ctx, int64(1)).Return(&models.Account{UserID: 1, Stars: 10}, nil)
		l.On("ChargeStars", ctx, int64(1), premium.FeatureRegionFilter, 3).Return(true, nil).Once()
		l.On("UnlockFeature", ctx, int64(1), premium.FeatureRegionFilter).Return(nil).Once()
		require.NoError(t, newService(l).Purchase(ctx, 1, premium.FeatureRegionFilter))
		l.AssertExpectations(t)
	})

	t.Run("vip unlocks without charge", func(t *testing.T) {
		l := new(MockLedger)
		l.On("GetAccount", ctx, int64(2)).Return(vipAccount(2), nil)
		l.On("UnlockFeature", ctx, int64(2), premium.FeatureGenderFilter).Return(nil).Once()
		require.NoError(t, newService(l).Purchase(ctx, 2, premium.FeatureGenderFilter))
		l.AssertNotCalled(t, "ChargeStars", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rematch is charged, nothing unlocked", func(t *testing.T) {
		l := new(MockLedger)
		l.On("GetAccount", ctx, int64(3)).Return(&models.Account{UserID: 3, Stars: 1}, nil)
		l.On("ChargeStars", ctx, int64(3), premium.FeatureInstantRematch, 1).Return(true, nil).Once()
		require.NoError(t, newService(l).Purchase(ctx, 3, premium.FeatureInstantRematch))
		l.AssertNotCalled(t, "UnlockFeature", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown feature", func(t *testing.T) {
		l := new(MockLedger)
		assert.ErrorIs(t, newService(l).Purchase(ctx, 4, "teleport"), premium.ErrUnknownFeature)
	})
}

func TestBuyVIPWeek_ExtendsRunningVIP(t *testing.T) {
	ctx := context.Background()
	acc := vipAccount(1)

	l := new(MockLedger)
	l.On("GetAccount", ctx, int64(1)).Return(acc, nil)
	l.On("ChargeStars", ctx, int64(1), premium.FeatureVIPWeek, 10).Return(true, nil).Once()
	l.On("GrantVIP", ctx, int64(1), acc.VIPUntil.Add(7*24*time.Hour), "vip_week").Return(nil).Once()

	require.NoError(t, newService(l).Purchase(ctx, 1, premium.FeatureVIPWeek))
	l.AssertExpectations(t)
}

func TestBuyVIPWeek_StartsFromNow(t *testing.T) {
	ctx := context.Background()

	l := new(MockLedger)
	l.On("GetAccount", ctx, int64(1)).Return(&models.Account{UserID: 1, Stars: 10}, nil)
	l.On("ChargeStars", ctx, int64(1), premium.FeatureVIPWeek, 10).Return(true, nil).Once()
	l.On("GrantVIP", ctx, int64(1), now.Add(7*24*time.Hour), "vip_week").Return(nil).Once()

	require.NoError(t, newService(l).BuyVIPWeek(ctx, 1))
	l.AssertExpectations(t)
}

func TestHasFeature(t *testing.T) {
	ctx := context.Background()
	l := new(MockLedger)
	l.On("GetAccount", ctx, int64(1)).Return(&models.Account{UserID: 1, Features: []string{premium.FeatureRegionFilter}}, nil)
	l.On("GetAccount", ctx, int64(2)).Return(&models.Account{UserID: 2}, nil)

	s := newService(l)
	ok, err := s.HasFeature(ctx, 1, premium.FeatureRegionFilter)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasFeature(ctx, 2, premium.FeatureRegionFilter)
	require.NoError(t, err)
	assert.False(t, ok)
}
