package matchmaking_test

import (
	"chatroulette/backend/internal/matchmaking"
	"chatroulette/backend/internal/models"
	"chatroulette/backend/internal/storage"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1700000000, 0)

// fakeClock is a settable clock for deterministic timestamps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	c.now = at
	c.mu.Unlock()
}

// queueUser creates a searching user with the given gender and enqueues it.
func queueUser(t *testing.T, s storage.Storage, id int64, g models.Gender, priority int, at time.Time) {
	t.Helper()
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, id, at)
	require.NoError(t, err)
	require.NoError(t, s.SetGender(ctx, id, g))
	require.NoError(t, s.SetState(ctx, id, models.StateSearching))
	require.NoError(t, s.EnqueueOrReplace(ctx, id, priority, at))
}

func queued(t *testing.T, s storage.Storage) []int64 {
	t.Helper()
	ids, err := s.GetQueueOrdered(context.Background())
	require.NoError(t, err)
	return ids
}

func userOf(t *testing.T, s storage.Storage, id int64) *models.User {
	t.Helper()
	u, err := s.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

// hookRecorder records hook invocations.
type hookRecorder struct {
	mu   sync.Mutex
	pre  []int64
	post []int64
}

func (h *hookRecorder) PreMatch(_ context.Context, id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pre = append(h.pre, id)
	return nil
}

func (h *hookRecorder) PostMatch(_ context.Context, id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.post = append(h.post, id)
	return nil
}

// noticeRecorder records notices sent through the Notifier.
type noticeRecorder struct {
	mu   sync.Mutex
	sent map[int64][]matchmaking.Notice
	err  error
}

func newNotices() *noticeRecorder {
	return &noticeRecorder{sent: make(map[int64][]matchmaking.Notice)}
}

func (n *noticeRecorder) Notify(_ context.Context, id int64, notice matchmaking.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[id] = append(n.sent[id], notice)
	return n.err
}

func (n *noticeRecorder) For(id int64) []matchmaking.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]matchmaking.Notice(nil), n.sent[id]...)
}

// sessionRecorder is an in-memory SessionLog.
type sessionRecorder struct {
	mu     sync.Mutex
	opened [][2]int64
	closed []int64
}

func (s *sessionRecorder) RecordSession(_ context.Context, u1, u2 int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, [2]int64{u1, u2})
	return nil
}

func (s *sessionRecorder) CloseSession(_ context.Context, id int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, id)
	return nil
}
