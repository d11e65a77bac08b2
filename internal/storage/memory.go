package storage

import (
	"chatroulette/backend/internal/models"
	"context"
	"sync"
	"time"
)

// MemoryStore keeps participants and the queue in process memory.
// It backs tests and single-process development runs.
type MemoryStore struct {
	mu    sync.Mutex
	users map[int64]*models.User
	queue map[int64]models.QueueEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]*models.User),
		queue: make(map[int64]models.QueueEntry),
	}
}

func copyUser(u *models.User) *models.User {
	c := *u
	if u.PartnerID != nil {
		p := *u.PartnerID
		c.PartnerID = &p
	}
	return &c
}

// lookup must be called with mu held.
func (m *MemoryStore) lookup(userID int64) (*models.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryStore) EnsureUser(ctx context.Context, userID int64, now time.Time) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		u = models.NewUser(userID, now)
		m.users[userID] = u
	}
	return copyUser(u), nil
}

func (m *MemoryStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.lookup(userID)
	if err != nil {
		return nil, err
	}
	return copyUser(u), nil
}

// update runs fn against the live record under the lock.
func (m *MemoryStore) update(userID int64, fn func(u *models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.lookup(userID)
	if err != nil {
		return err
	}
	fn(u)
	return nil
}

func (m *MemoryStore) Touch(ctx context.Context, userID int64, at time.Time) error {
	return m.update(userID, func(u *models.User) { u.LastActiveAt = at })
}

func (m *MemoryStore) GetState(ctx context.Context, userID int64) (models.State, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.State, nil
}

func (m *MemoryStore) SetState(ctx context.Context, userID int64, state models.State) error {
	return m.update(userID, func(u *models.User) { u.State = state })
}

func (m *MemoryStore) GetPartner(ctx context.Context, userID int64) (*int64, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.PartnerID, nil
}

func (m *MemoryStore) SetPartner(ctx context.Context, userID int64, partnerID *int64) error {
	return m.update(userID, func(u *models.User) {
		if partnerID == nil {
			u.PartnerID = nil
			return
		}
		p := *partnerID
		u.PartnerID = &p
	})
}

func (m *MemoryStore) GetGender(ctx context.Context, userID int64) (models.Gender, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return models.GenderUnset, err
	}
	return u.Gender, nil
}

func (m *MemoryStore) SetGender(ctx context.Context, userID int64, gender models.Gender) error {
	return m.update(userID, func(u *models.User) { u.Gender = gender })
}

func (m *MemoryStore) SetRegion(ctx context.Context, userID int64, region string, filter bool) error {
	return m.update(userID, func(u *models.User) {
		u.Region = region
		u.RegionFilter = filter
	})
}

func (m *MemoryStore) GetLastActive(ctx context.Context, userID int64) (time.Time, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	return u.LastActiveAt, nil
}

func (m *MemoryStore) GetQueueOrdered(ctx context.Context) ([]int64, error) {
	entries, err := m.QueueEntries(ctx)
	if err != nil {
		return nil, err
	}
	return models.QueueIDs(entries), nil
}

func (m *MemoryStore) QueueEntries(ctx context.Context) ([]models.QueueEntry, error) {
	m.mu.Lock()
	entries := make([]models.QueueEntry, 0, len(m.queue))
	for _, e := range m.queue {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	models.SortQueue(entries)
	return entries, nil
}

func (m *MemoryStore) EnqueueOrReplace(ctx context.Context, userID int64, priority int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue[userID] = models.QueueEntry{UserID: userID, Priority: priority, EnqueuedAt: at}
	return nil
}

func (m *MemoryStore) RemoveFromQueue(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queue, userID)
	return nil
}

func (m *MemoryStore) CommitMatch(ctx context.Context, u1, u2 int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queue[u1]; !ok {
		return ErrNotQueued
	}
	if _, ok := m.queue[u2]; !ok {
		return ErrNotQueued
	}
	a, err := m.lookup(u1)
	if err != nil {
		return err
	}
	b, err := m.lookup(u2)
	if err != nil {
		return err
	}
	if a.State != models.StateSearching || b.State != models.StateSearching {
		return ErrNotQueued
	}

	delete(m.queue, u1)
	delete(m.queue, u2)
	p1, p2 := u2, u1
	a.PartnerID, a.State = &p1, models.StateChatting
	b.PartnerID, b.State = &p2, models.StateChatting
	return nil
}

func (m *MemoryStore) Unpair(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, err := m.lookup(userID)
	if err != nil {
		return 0, err
	}
	partner := u.Partner()
	u.PartnerID = nil
	u.State = models.StateIdle

	if partner == 0 {
		return 0, nil
	}
	if p, ok := m.users[partner]; ok && p.Partner() == userID {
		p.PartnerID = nil
		p.State = models.StateIdle
	}
	return partner, nil
}
