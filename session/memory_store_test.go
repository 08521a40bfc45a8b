package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSaveLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := New("client1", false, 60)
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Load(ctx, "client1")
	require.NoError(t, err)
	assert.Equal(t, "client1", loaded.ClientID)
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, New("client1", false, 60)))
	require.NoError(t, store.Delete(ctx, "client1"))

	_, err := store.Load(ctx, "client1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreExists(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	exists, err := store.Exists(ctx, "client1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Save(ctx, New("client1", false, 60)))

	exists, err = store.Exists(ctx, "client1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryStoreList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, New("client1", false, 60)))
	require.NoError(t, store.Save(ctx, New("client2", false, 60)))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"client1", "client2"}, ids)
}

func TestMemoryStoreCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, New("client1", false, 60)))
	require.NoError(t, store.Save(ctx, New("client2", false, 60)))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMemoryStoreClose(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Close())

	err := store.Save(ctx, New("client1", false, 60))
	assert.ErrorIs(t, err, ErrStoreClosed)

	err = store.Close()
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestMemoryStoreRespectsCanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Save(ctx, New("client1", false, 60))
	assert.Error(t, err)
}
