package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore persiste snapshots de estatísticas do alocador no Redis com TTL
// configurável, para inspeção posterior pelo backend.
type RedisStore struct {
	client  *redis.Client
	keys    *KeyGenerator
	ttl     time.Duration
	enabled bool
}

// NewRedisStore creates a new RedisStore.
func NewRedisStore(addr string, ttlSeconds int, keys *KeyGenerator, enabled bool) *RedisStore {
	if !enabled {
		return &RedisStore{enabled: false}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	return &RedisStore{
		client:  rdb,
		keys:    keys,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		enabled: true,
	}
}

// Enabled returns true if the Redis store is enabled.
func (r *RedisStore) Enabled() bool {
	return r.enabled
}

// SaveSnapshot stores a stats snapshot in Redis with the configured TTL and
// returns the generated key.
func (r *RedisStore) SaveSnapshot(ctx context.Context, streamID string, timestamp time.Time, data []byte) (string, error) {
	if !r.enabled {
		return "", nil
	}

	key := r.keys.GenerateKey(streamID, timestamp)
	err := r.client.Set(ctx, key, data, r.ttl).Err()
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot to redis: %w", err)
	}
	return key, nil
}

func (r *RedisStore) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
