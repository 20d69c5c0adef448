package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hamed0406/sitemonitor/internal/repo"
)

const defaultKey = "sitemonitor:next_fire_millis"

var _ repo.StateStore = (*StateStore)(nil)

// StateStore keeps the scheduler's next fire time in Redis so that every
// process pointed at the same instance sees the same value.
type StateStore struct {
	rdb *redis.Client
	key string
}

func New(ctx context.Context, url string) (*StateStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &StateStore{rdb: rdb, key: defaultKey}, nil
}

func (s *StateStore) Close() error { return s.rdb.Close() }

func (s *StateStore) LoadNextFire(ctx context.Context) (time.Time, error) {
	v, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get next fire: %w", err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse next fire %q: %w", v, err)
	}
	return repo.NextFireFromMillis(ms), nil
}

func (s *StateStore) SaveNextFire(ctx context.Context, at time.Time) error {
	ms := repo.NextFireToMillis(at)
	if err := s.rdb.Set(ctx, s.key, strconv.FormatInt(ms, 10), 0).Err(); err != nil {
		return fmt.Errorf("set next fire: %w", err)
	}
	return nil
}
