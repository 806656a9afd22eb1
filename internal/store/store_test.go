package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, kv KVStore) {
	t.Helper()
	ctx := context.Background()
	key := DraftKey("user-1", "challenge-1")

	_, err := kv.Get(ctx, key)
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, kv.Set(ctx, key, "console.log(1)"))
	value, err := kv.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "console.log(1)", value)

	require.NoError(t, kv.Set(ctx, key, ""))
	value, err = kv.Get(ctx, key)
	require.NoError(t, err)
	require.Empty(t, value)

	require.NoError(t, kv.Remove(ctx, key))
	_, err = kv.Get(ctx, key)
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, kv.Remove(ctx, key), "removing a missing key is not an error")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseStore(t, NewRedisStore(client, 0))
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	kv := NewRedisStore(client, time.Hour)
	require.NoError(t, kv.Set(context.Background(), AutoRunKey("u"), "true"))
	require.Equal(t, time.Hour, mr.TTL(AutoRunKey("u")))

	mr.FastForward(2 * time.Hour)
	_, err := kv.Get(context.Background(), AutoRunKey("u"))
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestKeys(t *testing.T) {
	require.Equal(t, "playground:draft:u:c", DraftKey("u", "c"))
	require.Equal(t, "playground:autorun:u", AutoRunKey("u"))
}
