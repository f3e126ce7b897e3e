package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the Redis connection settings of the remote store
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}

// DefaultRedisConfig returns the default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "fluentbuddy:",
		Timeout:   5 * time.Second,
	}
}

// RedisStore mirrors snapshots of one learner into Redis
type RedisStore struct {
	client    *redis.Client
	learnerID string
	prefix    string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig, learnerID string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Addr)
	}
	return &RedisStore{client: client, learnerID: learnerID, prefix: cfg.KeyPrefix}, nil
}

// ForLearner returns a store for another learner sharing this connection
func (r *RedisStore) ForLearner(learnerID string) *RedisStore {
	return &RedisStore{client: r.client, learnerID: learnerID, prefix: r.prefix}
}

func (r *RedisStore) key(key string) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, r.learnerID, key)
}

func (r *RedisStore) Load(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "redis get %s", key)
	}
	if err := Decode(key, data, v); err != nil {
		return true, err
	}
	return true, nil
}

func (r *RedisStore) Save(ctx context.Context, key string, v interface{}) error {
	data, err := Encode(key, v)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), data, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

// Close releases the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
