package storage

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when no participant record exists.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotQueued is returned by CommitMatch when a candidate left the queue.
	ErrNotQueued = errors.New("user not in queue")

	// ErrRecordNotFound is returned by the gorm repository for missing rows.
	ErrRecordNotFound = errors.New("record not found")

	// ErrStore wraps any other backend failure.
	ErrStore = errors.New("store error")
)

func wrapError(err error, rules map[error]error, defaultErr error) error {
	if err == nil {
		return nil
	}
	for source, target := range rules {
		if errors.Is(err, source) {
			return target
		}
	}
	return fmt.Errorf("%w: %v", defaultErr, err)
}

var (
	redisErrorRules = map[error]error{
		redis.Nil: ErrUserNotFound,
	}
	dbErrorRules = map[error]error{
		gorm.ErrRecordNotFound: ErrRecordNotFound,
	}
)

func wrapRedisError(err error) error {
	return wrapError(err, redisErrorRules, ErrStore)
}

func wrapDBError(err error) error {
	return wrapError(err, dbErrorRules, ErrStore)
}
