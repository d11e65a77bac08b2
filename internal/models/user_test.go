package models_test

import (
	"chatroulette/backend/internal/models"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

// TestSessionBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestSessionBeforeCreate_GeneratesUUID(t *testing.T) {
	session := &models.ChatSession{User1ID: 1, User2ID: 2, StartedAt: time.Now()}
	assert.Empty(t, session.ID)

	err := session.BeforeCreate(nil) // nil *gorm.DB is acceptable for this hook

	assert.NoError(t, err)
	parsed, parseErr := uuid.Parse(session.ID)
	assert.NoError(t, parseErr, "session ID must be a valid UUID string")
	assert.NotEqual(t, uuid.Nil, parsed)
}

// TestSessionBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestSessionBeforeCreate_PreservesExistingID(t *testing.T) {
	existing := uuid.New().String()
	session := &models.ChatSession{ID: existing}

	assert.NoError(t, session.BeforeCreate(nil))
	assert.Equal(t, existing, session.ID)
}

func TestNewUser_Defaults(t *testing.T) {
	now := time.Unix(1700000000, 0)
	u := models.NewUser(42, now)

	assert.Equal(t, int64(42), u.ID)
	assert.Equal(t, models.StateIdle, u.State)
	assert.Equal(t, models.GenderUnset, u.Gender)
	assert.False(t, u.HasPartner())
	assert.Equal(t, int64(0), u.Partner())
	assert.Equal(t, now, u.LastActiveAt)
}

func TestParseGender(t *testing.T) {
	tests := []struct {
		in   string
		want models.Gender
	}{
		{"male", models.GenderMale},
		{"female", models.GenderFemale},
		{"", models.GenderUnset},
		{"skip", models.GenderUnset},
		{"MALE", models.GenderUnset},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, models.ParseGender(tt.in))
		})
	}
}

func TestStateValid(t *testing.T) {
	assert.True(t, models.StateIdle.Valid())
	assert.True(t, models.StateSearching.Valid())
	assert.True(t, models.StateChatting.Valid())
	assert.False(t, models.State("banned").Valid())
}

// TestSortQueue_PriorityThenAge checks priority descending, then FIFO inside a tier.
func TestSortQueue_PriorityThenAge(t *testing.T) {
	t0 := time.Unix(1000, 0)
	entries := []models.QueueEntry{
		{UserID: 3, Priority: 0, EnqueuedAt: t0},
		{UserID: 2, Priority: 10, EnqueuedAt: t0.Add(time.Second)},
		{UserID: 5, Priority: 5, EnqueuedAt: t0.Add(3 * time.Second)},
		{UserID: 1, Priority: 10, EnqueuedAt: t0},
		{UserID: 4, Priority: 5, EnqueuedAt: t0.Add(2 * time.Second)},
	}

	models.SortQueue(entries)

	assert.Equal(t, []int64{1, 2, 4, 5, 3}, models.QueueIDs(entries))
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		assert.GreaterOrEqual(t, prev.Priority, cur.Priority)
		if prev.Priority == cur.Priority {
			assert.False(t, cur.EnqueuedAt.Before(prev.EnqueuedAt))
		}
	}
}

func TestAccount_IsVIPAndFeatures(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.False(t, (&models.Account{}).IsVIP(now))
	assert.True(t, (&models.Account{VIPUntil: &future}).IsVIP(now))
	assert.False(t, (&models.Account{VIPUntil: &past}).IsVIP(now))

	acc := &models.Account{Features: pq.StringArray{"gender_filter"}}
	assert.True(t, acc.HasFeature("gender_filter"))
	assert.False(t, acc.HasFeature("region_filter"))
}
