package storage

import (
	"chatroulette/backend/internal/models"
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository keeps the durable records in PostgreSQL: accounts (stars, VIP),
// the star ledger and the chat session log.
type Repository struct {
	DB *gorm.DB
}

// NewRepository Constructor
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{DB: db}
}

// AutoMigrate creates or updates the tables for every durable model.
func (r *Repository) AutoMigrate() error {
	return r.DB.AutoMigrate(
		&models.Account{},
		&models.Transaction{},
		&models.ChatSession{},
	)
}

// GetAccount returns the user's account, creating an empty one on first use.
func (r *Repository) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	var acc models.Account
	err := r.DB.WithContext(ctx).
		Where(models.Account{UserID: userID}).
		FirstOrCreate(&acc).Error
	if err != nil {
		return nil, wrapDBError(err)
	}
	return &acc, nil
}

// lockAccount loads the account row FOR UPDATE inside tx, creating it if absent.
func lockAccount(tx *gorm.DB, userID int64) (*models.Account, error) {
	var acc models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		acc = models.Account{UserID: userID}
		if err := tx.Create(&acc).Error; err != nil {
			return nil, err
		}
		return &acc, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// ChargeStars debits price stars for feature. It returns false without
// writing anything when the balance is too low.
func (r *Repository) ChargeStars(ctx context.Context, userID int64, feature string, price int) (bool, error) {
	charged := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if acc.Stars < price {
			return nil
		}
		if err := tx.Model(acc).Update("stars", gorm.Expr("stars - ?", price)).Error; err != nil {
			return err
		}
		charged = true
		return tx.Create(&models.Transaction{UserID: userID, Amount: -price, Feature: "buy_" + feature}).Error
	})
	if err != nil {
		return false, wrapDBError(err)
	}
	return charged, nil
}

// AddStars credits the balance and logs the movement.
func (r *Repository) AddStars(ctx context.Context, userID int64, amount int, reason string) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if err := tx.Model(acc).Update("stars", gorm.Expr("stars + ?", amount)).Error; err != nil {
			return err
		}
		return tx.Create(&models.Transaction{UserID: userID, Amount: amount, Feature: reason}).Error
	})
	return wrapDBError(err)
}

// GrantVIP sets the VIP expiry and logs the grant.
func (r *Repository) GrantVIP(ctx context.Context, userID int64, until time.Time, reason string) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if err := tx.Model(acc).Update("vip_until", until).Error; err != nil {
			return err
		}
		return tx.Create(&models.Transaction{UserID: userID, Amount: 0, Feature: reason}).Error
	})
	return wrapDBError(err)
}

// UnlockFeature adds feature to the account's unlocked list once.
func (r *Repository) UnlockFeature(ctx context.Context, userID int64, feature string) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if acc.HasFeature(feature) {
			return nil
		}
		features := append(pq.StringArray{}, acc.Features...)
		features = append(features, feature)
		if err := tx.Model(acc).Update("features", features).Error; err != nil {
			return err
		}
		return tx.Create(&models.Transaction{UserID: userID, Amount: 0, Feature: "unlock_" + feature}).Error
	})
	return wrapDBError(err)
}

// RecordSession stores a committed match.
func (r *Repository) RecordSession(ctx context.Context, u1, u2 int64, at time.Time) error {
	session := &models.ChatSession{User1ID: u1, User2ID: u2, StartedAt: at}
	return wrapDBError(r.DB.WithContext(ctx).Create(session).Error)
}

// CloseSession marks the user's open sessions as ended.
func (r *Repository) CloseSession(ctx context.Context, userID int64, at time.Time) error {
	err := r.DB.WithContext(ctx).Model(&models.ChatSession{}).
		Where("ended_at IS NULL").
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Update("ended_at", at).Error
	return wrapDBError(err)
}

// ListTransactions returns the user's ledger, newest first.
func (r *Repository) ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&txs).Error
	if err != nil {
		return nil, wrapDBError(err)
	}
	return txs, nil
}
