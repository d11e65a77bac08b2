package models

import (
	"sort"
	"time"
)

// QueueEntry is one user's membership in the waiting pool.
type QueueEntry struct {
	UserID     int64     `json:"user_id"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Less orders entries by priority descending, then by enqueue time ascending.
// User ID breaks exact ties so the order is total.
func (e QueueEntry) Less(o QueueEntry) bool {
	if e.Priority != o.Priority {
		return e.Priority > o.Priority
	}
	if !e.EnqueuedAt.Equal(o.EnqueuedAt) {
		return e.EnqueuedAt.Before(o.EnqueuedAt)
	}
	return e.UserID < o.UserID
}

// SortQueue sorts entries in place into pool order.
func SortQueue(entries []QueueEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Less(entries[j]) })
}

// QueueIDs extracts the user IDs from ordered entries.
func QueueIDs(entries []QueueEntry) []int64 {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	return ids
}
