package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	kerr "github.com/hyperjump/kioku/pkg/errors"
)

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// RedisStore implements RecordStore with Redis hashes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeConfigValidateInvalidValue, "invalid redis url")
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, kerr.Wrap(err, kerr.CodeStoreConnectFailure, "failed to connect to redis")
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Backend returns "redis".
func (s *RedisStore) Backend() string {
	return BackendRedis
}

// HashSet writes field in namespace.
func (s *RedisStore) HashSet(ctx context.Context, namespace, field, value string) error {
	return s.client.HSet(ctx, namespace, field, value).Err()
}

// HashMultiGet reads fields from namespace with HMGET.
func (s *RedisStore) HashMultiGet(ctx context.Context, namespace string, fields []string) ([]Entry, error) {
	if len(fields) == 0 {
		return []Entry{}, nil
	}
	values, err := s.client.HMGet(ctx, namespace, fields...).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(values))
	for i, v := range values {
		if str, ok := v.(string); ok {
			entries[i] = Entry{Value: str, Found: true}
		}
	}
	return entries, nil
}

// HashGetAll reads every field of namespace.
func (s *RedisStore) HashGetAll(ctx context.Context, namespace string) (map[string]string, error) {
	return s.client.HGetAll(ctx, namespace).Result()
}

// DeleteNamespace removes the namespace key.
func (s *RedisStore) DeleteNamespace(ctx context.Context, namespace string) error {
	return s.client.Del(ctx, namespace).Err()
}

// Expire sets the namespace TTL.
func (s *RedisStore) Expire(ctx context.Context, namespace string, ttl time.Duration) error {
	return s.client.Expire(ctx, namespace, ttl).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
