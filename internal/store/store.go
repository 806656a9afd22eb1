// Package store provides the key-value persistence behind drafts and editor preferences.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key holds no value.
var ErrNotFound = errors.New("key not found")

// KVStore is the minimal get/set/remove contract used by the editor workflow.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// DraftKey is the key holding a user's in-progress code for a challenge.
func DraftKey(userID, challengeID string) string {
	return fmt.Sprintf("playground:draft:%s:%s", userID, challengeID)
}

// AutoRunKey is the key holding a user's auto-run preference.
func AutoRunKey(userID string) string {
	return fmt.Sprintf("playground:autorun:%s", userID)
}

// NewMemoryStore returns a process-local store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// MemoryStore keeps values in a mutex-guarded map.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// NewRedisStore wraps a redis client. A zero ttl keeps values without expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// RedisStore persists values in redis so drafts survive restarts and are shared across instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
