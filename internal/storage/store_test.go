package storage_test

import (
	"chatroulette/backend/internal/models"
	"chatroulette/backend/internal/storage"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) storage.Storage

func newMemory(t *testing.T) storage.Storage {
	return storage.NewMemoryStore()
}

func newRedis(t *testing.T) storage.Storage {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storage.NewRedisStore(client, "test:")
}

var factories = map[string]storeFactory{
	"memory": newMemory,
	"redis":  newRedis,
}

// forEachStore runs fn once per Storage implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s storage.Storage)) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

var t0 = time.Unix(1700000000, 0)

func seedUsers(t *testing.T, s storage.Storage, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		_, err := s.EnsureUser(context.Background(), id, t0)
		require.NoError(t, err)
	}
}

// queueSearching creates the users and puts them in the queue as searching.
func queueSearching(t *testing.T, s storage.Storage, ids ...int64) {
	t.Helper()
	ctx := context.Background()
	seedUsers(t, s, ids...)
	for _, id := range ids {
		require.NoError(t, s.SetState(ctx, id, models.StateSearching))
		require.NoError(t, s.EnqueueOrReplace(ctx, id, 0, t0))
	}
}

func TestEnsureUser_DefaultsAndIdempotence(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()

		u, err := s.EnsureUser(ctx, 7, t0)
		require.NoError(t, err)
		assert.Equal(t, models.StateIdle, u.State)
		assert.Nil(t, u.PartnerID)
		assert.Equal(t, t0.UnixMilli(), u.LastActiveAt.UnixMilli())

		require.NoError(t, s.SetState(ctx, 7, models.StateSearching))
		u, err = s.EnsureUser(ctx, 7, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.StateSearching, u.State, "existing record must not be reset")
		assert.Equal(t, t0.UnixMilli(), u.LastActiveAt.UnixMilli())
	})
}

func TestUnknownUser_ReturnsErrUserNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()

		_, err := s.GetUser(ctx, 404)
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
		_, err = s.GetState(ctx, 404)
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
		assert.ErrorIs(t, s.SetState(ctx, 404, models.StateIdle), storage.ErrUserNotFound)
		assert.ErrorIs(t, s.Touch(ctx, 404, t0), storage.ErrUserNotFound)
		assert.ErrorIs(t, s.SetPartner(ctx, 404, nil), storage.ErrUserNotFound)
		_, err = s.Unpair(ctx, 404)
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
	})
}

func TestAttributes_RoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		seedUsers(t, s, 1, 2)

		require.NoError(t, s.SetGender(ctx, 1, models.GenderFemale))
		require.NoError(t, s.SetRegion(ctx, 1, "eu", true))
		require.NoError(t, s.Touch(ctx, 1, t0.Add(5*time.Second)))
		partner := int64(2)
		require.NoError(t, s.SetPartner(ctx, 1, &partner))

		g, err := s.GetGender(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.GenderFemale, g)

		last, err := s.GetLastActive(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(5*time.Second).UnixMilli(), last.UnixMilli())

		p, err := s.GetPartner(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, int64(2), *p)

		u, err := s.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "eu", u.Region)
		assert.True(t, u.RegionFilter)

		require.NoError(t, s.SetPartner(ctx, 1, nil))
		p, err = s.GetPartner(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, p)
	})
}

func TestQueue_OrderedByPriorityThenAge(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.EnqueueOrReplace(ctx, 3, 0, t0))
		require.NoError(t, s.EnqueueOrReplace(ctx, 2, 10, t0.Add(time.Second)))
		require.NoError(t, s.EnqueueOrReplace(ctx, 1, 10, t0))
		require.NoError(t, s.EnqueueOrReplace(ctx, 4, 5, t0.Add(2*time.Second)))

		ids, err := s.GetQueueOrdered(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 4, 3}, ids)

		entries, err := s.QueueEntries(ctx)
		require.NoError(t, err)
		for i := 1; i < len(entries); i++ {
			assert.GreaterOrEqual(t, entries[i-1].Priority, entries[i].Priority)
			if entries[i-1].Priority == entries[i].Priority {
				assert.False(t, entries[i].EnqueuedAt.Before(entries[i-1].EnqueuedAt))
			}
		}
	})
}

func TestQueue_AtMostOneEntryPerUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.EnqueueOrReplace(ctx, 1, 0, t0))
		require.NoError(t, s.EnqueueOrReplace(ctx, 1, 10, t0.Add(3*time.Second)))

		entries, err := s.QueueEntries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, 10, entries[0].Priority)
		assert.True(t, entries[0].EnqueuedAt.Equal(t0.Add(3*time.Second)))
	})
}

func TestQueue_RemoveIsNoOpWhenAbsent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		require.NoError(t, s.RemoveFromQueue(ctx, 99))
		require.NoError(t, s.EnqueueOrReplace(ctx, 1, 0, t0))
		require.NoError(t, s.RemoveFromQueue(ctx, 1))

		ids, err := s.GetQueueOrdered(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestCommitMatch_LinksBothSides(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		queueSearching(t, s, 1, 2, 3)

		require.NoError(t, s.CommitMatch(ctx, 1, 2))

		for _, pair := range [][2]int64{{1, 2}, {2, 1}} {
			u, err := s.GetUser(ctx, pair[0])
			require.NoError(t, err)
			assert.Equal(t, models.StateChatting, u.State)
			assert.Equal(t, pair[1], u.Partner())
		}
		ids, err := s.GetQueueOrdered(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{3}, ids)
	})
}

func TestCommitMatch_RejectsUserThatLeftQueue(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		queueSearching(t, s, 1)
		seedUsers(t, s, 2)

		err := s.CommitMatch(ctx, 1, 2)
		assert.ErrorIs(t, err, storage.ErrNotQueued)

		u, err := s.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.StateSearching, u.State)
		assert.Nil(t, u.PartnerID)
		ids, err := s.GetQueueOrdered(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, ids, "the remaining candidate stays queued")
	})
}

func TestCommitMatch_RejectsUserThatStoppedSearching(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		queueSearching(t, s, 1, 2)
		require.NoError(t, s.SetState(ctx, 2, models.StateIdle))

		err := s.CommitMatch(ctx, 1, 2)
		assert.ErrorIs(t, err, storage.ErrNotQueued)

		for _, id := range []int64{1, 2} {
			u, err := s.GetUser(ctx, id)
			require.NoError(t, err)
			assert.Nil(t, u.PartnerID)
		}
		ids, err := s.GetQueueOrdered(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ids, "a rejected commit leaves the queue untouched")
	})
}

func TestCommitMatch_ConcurrentCommitsNeverShareAUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		queueSearching(t, s, 1, 2, 3)

		var wg sync.WaitGroup
		results := make([]error, 2)
		for i, other := range []int64{2, 3} {
			wg.Add(1)
			go func(i int, other int64) {
				defer wg.Done()
				results[i] = s.CommitMatch(ctx, 1, other)
			}(i, other)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range results {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, storage.ErrNotQueued)
			}
		}
		assert.Equal(t, 1, succeeded, "user 1 can only be committed once")
	})
}

func TestUnpair_ClearsMutualLink(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		queueSearching(t, s, 1, 2)
		require.NoError(t, s.CommitMatch(ctx, 1, 2))

		partner, err := s.Unpair(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), partner)

		for _, id := range []int64{1, 2} {
			u, err := s.GetUser(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, models.StateIdle, u.State)
			assert.Nil(t, u.PartnerID)
		}
	})
}

func TestUnpair_LeavesForeignLinkAlone(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		seedUsers(t, s, 1, 2, 3)
		two, three := int64(2), int64(3)
		require.NoError(t, s.SetPartner(ctx, 1, &two))
		require.NoError(t, s.SetPartner(ctx, 2, &three))
		require.NoError(t, s.SetState(ctx, 2, models.StateChatting))

		partner, err := s.Unpair(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), partner)

		u2, err := s.GetUser(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), u2.Partner(), "user 2 points elsewhere and must keep its link")
		assert.Equal(t, models.StateChatting, u2.State)
	})
}

func TestUnpair_WithoutPartner(t *testing.T) {
	forEachStore(t, func(t *testing.T, s storage.Storage) {
		ctx := context.Background()
		seedUsers(t, s, 1)
		require.NoError(t, s.SetState(ctx, 1, models.StateSearching))

		partner, err := s.Unpair(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), partner)

		state, err := s.GetState(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.StateIdle, state)
	})
}

func TestRedisStore_KeyLayout(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := storage.NewRedisStore(client, "cr:")

	_, err := s.EnsureUser(ctx, 42, t0)
	require.NoError(t, err)
	require.NoError(t, s.EnqueueOrReplace(ctx, 42, 5, t0))

	assert.True(t, mr.Exists("cr:user:42"))
	assert.Equal(t, "idle", mr.HGet("cr:user:42", "state"))
	assert.True(t, mr.Exists("cr:queue"))
	assert.Contains(t, mr.HGet("cr:queue", "42"), "5:")

	require.NoError(t, s.RemoveFromQueue(ctx, 42))
	assert.False(t, mr.Exists("cr:queue"), "empty hash is dropped by redis")
	require.NoError(t, s.Ping(ctx))
}

func TestRedisStore_CorruptQueueValue(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := storage.NewRedisStore(client, "cr:")

	mr.HSet("cr:queue", "1", "garbage")

	_, err := s.QueueEntries(ctx)
	assert.ErrorIs(t, err, storage.ErrStore)
}

func TestRedisStore_ConnectionFailureIsStoreError(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	s := storage.NewRedisStore(client, "cr:")
	mr.Close()

	_, err := s.GetQueueOrdered(ctx)
	assert.ErrorIs(t, err, storage.ErrStore)
}
