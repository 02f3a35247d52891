package storage

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/StrathCole/ivindex-go/pkg/config"
	"github.com/StrathCole/ivindex-go/pkg/index"
)

// DefaultKeyPrefix prefixes state keys.
const DefaultKeyPrefix = "ivindex:state:"

// RedisStateStore keeps the smoothing state of each underlying as JSON.
type RedisStateStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisStateStore connects and pings Redis.
func NewRedisStateStore(ctx context.Context, cfg config.RedisConfig) (*RedisStateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := withTimeout(ctx, cfg.Timeout.ToDuration())
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return NewRedisStateStoreWithClient(client, cfg.KeyPrefix, cfg.Timeout.ToDuration()), nil
}

// NewRedisStateStoreWithClient wraps an existing client.
func NewRedisStateStoreWithClient(client *redis.Client, prefix string, timeout time.Duration) *RedisStateStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStateStore{client: client, prefix: prefix, timeout: timeout}
}

// Load implements engine.StateStore. A missing key is not an error.
func (s *RedisStateStore) Load(ctx context.Context, underlying string) (index.IndexState, bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var state index.IndexState
	val, err := s.client.Get(ctx, s.prefix+underlying).Bytes()
	if err == redis.Nil {
		return state, false, nil
	}
	if err != nil {
		return state, false, errors.Wrapf(err, "redis get %s", underlying)
	}
	if err := jsoniter.Unmarshal(val, &state); err != nil {
		return state, false, errors.Wrapf(err, "decode state %s", underlying)
	}
	return state, true, nil
}

// Save implements engine.StateStore.
func (s *RedisStateStore) Save(ctx context.Context, underlying string, state index.IndexState) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	val, err := jsoniter.Marshal(state)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := s.client.Set(ctx, s.prefix+underlying, val, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", underlying)
	}
	return nil
}

// Close closes the client.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
