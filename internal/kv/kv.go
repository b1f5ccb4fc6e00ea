// Package kv wraps the Redis connection used for the registry's key-value
// tier: event dedupe markers, needs_update hints, per-skill advisory locks,
// and sliding-window rate-limit counters.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is a thin typed wrapper over a Redis client.
type Store struct {
	rdb *redis.Client
}

// New creates a Store backed by the given Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Open connects to Redis at addr and pings it.
func Open(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// Client exposes the underlying Redis client for collaborators (queue).
func (s *Store) Client() *redis.Client { return s.rdb }

// Close releases the underlying connection.
func (s *Store) Close() error { return s.rdb.Close() }

// Get returns the string value at key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

// Set stores value at key with the given TTL (0 = no expiry).
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Delete removes the given keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// ScanPrefix returns all keys matching prefix followed by anything.
// The result is materialized into a bounded slice; callers iterate it once.
func (s *Store) ScanPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys, iter.Err()
}

// Lock is a short-TTL advisory lock acquired with SETNX. The random token
// guards release so an expired holder cannot unlock a successor.
type Lock struct {
	store *Store
	key   string
	token string
}

// AcquireLock tries to take the named lock for ttl. It returns (nil, false)
// when another holder is active.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lock{store: s, key: key, token: token}, true, nil
}

// releaseScript deletes the lock only when the stored token still matches.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// Release frees the lock if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.store.rdb, []string{l.key}, l.token).Err()
}
