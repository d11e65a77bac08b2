package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Account holds the paid side of a user: star balance, VIP expiry and
// the premium features the user has unlocked.
type Account struct {
	UserID    int64          `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Stars     int            `gorm:"not null;default:0" json:"stars"`
	VIPUntil  *time.Time     `json:"vip_until,omitempty"`
	Features  pq.StringArray `gorm:"type:text[]" json:"features"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsVIP reports whether the VIP period is still running at now.
func (a *Account) IsVIP(now time.Time) bool {
	return a.VIPUntil != nil && a.VIPUntil.After(now)
}

// HasFeature reports whether name was unlocked.
func (a *Account) HasFeature(name string) bool {
	for _, f := range a.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Transaction is an append-only ledger row for star movements and grants.
type Transaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Amount    int       `gorm:"not null" json:"amount"`
	Feature   string    `gorm:"type:text;not null" json:"feature"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession records one committed match.
type ChatSession struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	User1ID   int64      `gorm:"index" json:"user1_id"`
	User2ID   int64      `gorm:"index" json:"user2_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// BeforeCreate generates a UUID for the session if none was set.
func (s *ChatSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}
