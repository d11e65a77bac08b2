// Package storage holds the participant store used by matchmaking and the
// durable gorm repository for accounts, sessions and the star ledger.
package storage

import (
	"chatroulette/backend/internal/models"
	"context"
	"time"
)

// Storage is the live participant store shared by the pairing engine, the
// cleanup sweeper and the bot. Every method is atomic per user record;
// CommitMatch and Unpair are atomic across the two records they touch.
type Storage interface {
	// EnsureUser creates the record with defaults if it does not exist yet
	// and returns the current record.
	EnsureUser(ctx context.Context, userID int64, now time.Time) (*models.User, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	Touch(ctx context.Context, userID int64, at time.Time) error

	GetState(ctx context.Context, userID int64) (models.State, error)
	SetState(ctx context.Context, userID int64, state models.State) error
	GetPartner(ctx context.Context, userID int64) (*int64, error)
	SetPartner(ctx context.Context, userID int64, partnerID *int64) error
	GetGender(ctx context.Context, userID int64) (models.Gender, error)
	SetGender(ctx context.Context, userID int64, gender models.Gender) error
	SetRegion(ctx context.Context, userID int64, region string, filter bool) error
	GetLastActive(ctx context.Context, userID int64) (time.Time, error)

	// GetQueueOrdered returns queued user IDs by priority desc, enqueue time asc.
	GetQueueOrdered(ctx context.Context) ([]int64, error)
	// QueueEntries returns the full ordered entries from one consistent read.
	QueueEntries(ctx context.Context) ([]models.QueueEntry, error)
	EnqueueOrReplace(ctx context.Context, userID int64, priority int, at time.Time) error
	RemoveFromQueue(ctx context.Context, userID int64) error

	// CommitMatch removes both users from the queue, links them as partners
	// and sets both to chatting, all or nothing. It returns ErrNotQueued if
	// either user has left the queue or is no longer searching.
	CommitMatch(ctx context.Context, u1, u2 int64) error
	// Unpair sets the user idle and clears its partner link. The partner's
	// link is cleared (and the partner set idle) only if it points back.
	// It returns the former partner ID, or 0.
	Unpair(ctx context.Context, userID int64) (int64, error)
}
