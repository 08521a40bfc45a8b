//go:build integration

package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func setupRedisStore(t *testing.T) *RedisStore {
	store, err := NewRedisStore(RedisStoreConfig{Addr: getRedisAddr(), DB: 15})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	require.NoError(t, store.Flush(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStoreSaveLoad(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	s := New("client1", false, 60)
	s.AddSub("a/b", 1)
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Load(ctx, "client1")
	require.NoError(t, err)
	assert.Equal(t, "client1", loaded.ClientID)
	assert.Equal(t, byte(1), loaded.Subs["a/b"])
}

func TestRedisStoreLoadMissing(t *testing.T) {
	store := setupRedisStore(t)
	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreDelete(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, New("client1", false, 60)))
	require.NoError(t, store.Delete(ctx, "client1"))

	_, err := store.Load(ctx, "client1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreExists(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "client1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Save(ctx, New("client1", false, 60)))

	exists, err = store.Exists(ctx, "client1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRedisStoreList(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, New("client1", false, 60)))
	require.NoError(t, store.Save(ctx, New("client2", false, 60)))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"client1", "client2"}, ids)
}

func TestRedisStoreCount(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, New("client1", false, 60)))
	require.NoError(t, store.Save(ctx, New("client2", false, 60)))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRedisStoreTTL(t *testing.T) {
	store, err := NewRedisStore(RedisStoreConfig{Addr: getRedisAddr(), DB: 15, TTL: time.Hour})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Flush(ctx))
	require.NoError(t, store.Save(ctx, New("client1", false, 60)))

	ttl := store.client.TTL(ctx, makeRedisKey("client1")).Val()
	assert.Greater(t, ttl, time.Duration(0))
}
