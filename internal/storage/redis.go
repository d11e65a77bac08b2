package storage

import (
	"chatroulette/backend/internal/models"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout:
//
//	hash: {prefix}queue          -> field userID, value "priority:enqueuedUnixNano"
//	hash: {prefix}user:{userID}  -> state, gender, region, region_filter, partner, last_active
const (
	fieldState        = "state"
	fieldGender       = "gender"
	fieldRegion       = "region"
	fieldRegionFilter = "region_filter"
	fieldPartner      = "partner"
	fieldLastActive   = "last_active"

	unpairRetries = 3
)

// RedisStore is the production participant store. The whole queue lives in
// one hash so a snapshot is a single HGETALL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a store whose keys start with prefix (e.g. "cr:").
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) queueKey() string {
	return s.prefix + "queue"
}

func (s *RedisStore) userKey(userID int64) string {
	return s.prefix + "user:" + strconv.FormatInt(userID, 10)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func encodeQueueValue(priority int, at time.Time) string {
	return strconv.Itoa(priority) + ":" + strconv.FormatInt(at.UnixNano(), 10)
}

func decodeQueueEntry(field, value string) (models.QueueEntry, error) {
	id, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("bad queue member %q: %w", field, err)
	}
	prio, ts, ok := strings.Cut(value, ":")
	if !ok {
		return models.QueueEntry{}, fmt.Errorf("bad queue value %q", value)
	}
	p, err := strconv.Atoi(prio)
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("bad queue priority %q: %w", value, err)
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("bad queue timestamp %q: %w", value, err)
	}
	return models.QueueEntry{UserID: id, Priority: p, EnqueuedAt: time.Unix(0, nanos)}, nil
}

func decodeUser(userID int64, fields map[string]string) (*models.User, error) {
	if len(fields) == 0 {
		return nil, ErrUserNotFound
	}
	u := &models.User{
		ID:           userID,
		State:        models.State(fields[fieldState]),
		Gender:       models.ParseGender(fields[fieldGender]),
		Region:       fields[fieldRegion],
		RegionFilter: fields[fieldRegionFilter] == "1",
	}
	if u.State == "" {
		u.State = models.StateIdle
	}
	if raw := fields[fieldPartner]; raw != "" {
		p, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad partner %q for user %d", ErrStore, raw, userID)
		}
		u.PartnerID = &p
	}
	if raw := fields[fieldLastActive]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad last_active %q for user %d", ErrStore, raw, userID)
		}
		u.LastActiveAt = time.UnixMilli(ms)
	}
	return u, nil
}

func (s *RedisStore) EnsureUser(ctx context.Context, userID int64, now time.Time) (*models.User, error) {
	key := s.userKey(userID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, key, fieldState, string(models.StateIdle))
		p.HSetNX(ctx, key, fieldLastActive, strconv.FormatInt(now.UnixMilli(), 10))
		return nil
	})
	if err != nil {
		return nil, wrapRedisError(err)
	}
	return s.GetUser(ctx, userID)
}

func (s *RedisStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	fields, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, wrapRedisError(err)
	}
	return decodeUser(userID, fields)
}

func (s *RedisStore) setFields(ctx context.Context, userID int64, args ...interface{}) error {
	n, err := luaSetIfExists.Run(ctx, s.client, []string{s.userKey(userID)}, args...).Int64()
	if err != nil {
		return wrapRedisError(err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *RedisStore) Touch(ctx context.Context, userID int64, at time.Time) error {
	return s.setFields(ctx, userID, fieldLastActive, strconv.FormatInt(at.UnixMilli(), 10))
}

func (s *RedisStore) GetState(ctx context.Context, userID int64) (models.State, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.State, nil
}

func (s *RedisStore) SetState(ctx context.Context, userID int64, state models.State) error {
	return s.setFields(ctx, userID, fieldState, string(state))
}

func (s *RedisStore) GetPartner(ctx context.Context, userID int64) (*int64, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.PartnerID, nil
}

func (s *RedisStore) SetPartner(ctx context.Context, userID int64, partnerID *int64) error {
	if partnerID != nil {
		return s.setFields(ctx, userID, fieldPartner, formatID(*partnerID))
	}
	n, err := luaDelIfExists.Run(ctx, s.client, []string{s.userKey(userID)}, fieldPartner).Int64()
	if err != nil {
		return wrapRedisError(err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *RedisStore) GetGender(ctx context.Context, userID int64) (models.Gender, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return models.GenderUnset, err
	}
	return u.Gender, nil
}

func (s *RedisStore) SetGender(ctx context.Context, userID int64, gender models.Gender) error {
	return s.setFields(ctx, userID, fieldGender, string(gender))
}

func (s *RedisStore) SetRegion(ctx context.Context, userID int64, region string, filter bool) error {
	flag := "0"
	if filter {
		flag = "1"
	}
	return s.setFields(ctx, userID, fieldRegion, region, fieldRegionFilter, flag)
}

func (s *RedisStore) GetLastActive(ctx context.Context, userID int64) (time.Time, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	return u.LastActiveAt, nil
}

func (s *RedisStore) GetQueueOrdered(ctx context.Context) ([]int64, error) {
	entries, err := s.QueueEntries(ctx)
	if err != nil {
		return nil, err
	}
	return models.QueueIDs(entries), nil
}

func (s *RedisStore) QueueEntries(ctx context.Context) ([]models.QueueEntry, error) {
	raw, err := s.client.HGetAll(ctx, s.queueKey()).Result()
	if err != nil {
		return nil, wrapRedisError(err)
	}
	entries := make([]models.QueueEntry, 0, len(raw))
	for field, value := range raw {
		e, err := decodeQueueEntry(field, value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		entries = append(entries, e)
	}
	models.SortQueue(entries)
	return entries, nil
}

func (s *RedisStore) EnqueueOrReplace(ctx context.Context, userID int64, priority int, at time.Time) error {
	err := s.client.HSet(ctx, s.queueKey(), formatID(userID), encodeQueueValue(priority, at)).Err()
	return wrapRedisError(err)
}

func (s *RedisStore) RemoveFromQueue(ctx context.Context, userID int64) error {
	err := s.client.HDel(ctx, s.queueKey(), formatID(userID)).Err()
	return wrapRedisError(err)
}

func (s *RedisStore) CommitMatch(ctx context.Context, u1, u2 int64) error {
	keys := []string{s.queueKey(), s.userKey(u1), s.userKey(u2)}
	n, err := luaCommitMatch.Run(ctx, s.client, keys, formatID(u1), formatID(u2)).Int64()
	if err != nil {
		return wrapRedisError(err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return ErrNotQueued
	default:
		return ErrUserNotFound
	}
}

func (s *RedisStore) Unpair(ctx context.Context, userID int64) (int64, error) {
	for attempt := 0; attempt < unpairRetries; attempt++ {
		u, err := s.GetUser(ctx, userID)
		if err != nil {
			return 0, err
		}
		partner := u.Partner()
		partnerKey, partnerArg := s.userKey(userID), ""
		if partner != 0 {
			partnerKey, partnerArg = s.userKey(partner), formatID(partner)
		}

		n, err := luaUnpair.Run(ctx, s.client, []string{s.userKey(userID), partnerKey}, formatID(userID), partnerArg).Int64()
		if err != nil {
			return 0, wrapRedisError(err)
		}
		switch n {
		case 1:
			return partner, nil
		case -1:
			return 0, ErrUserNotFound
		}
		// -2: the link changed between read and script; read again.
	}
	return 0, fmt.Errorf("%w: unpair of user %d kept conflicting", ErrStore, userID)
}

// Ping checks connectivity; used by the health endpoint.
func (s *RedisStore) Ping(ctx context.Context) error {
	return wrapRedisError(s.client.Ping(ctx).Err())
}
