package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testQuote struct {
	Mint      string
	OutAmount uint64
}

func TestTTLCache_MemoryStore(t *testing.T) {
	ctx := context.Background()

	now := time.Now()
	store := NewMemoryStore(1 << 20).(*memoryStore)
	store.now = func() time.Time { return now }

	quotes := NewTTLCache[*testQuote](store, "quote", 10*time.Second)

	_, ok, err := quotes.Get(ctx, "mint")
	require.NoError(t, err)
	assert.False(t, ok)

	expected := &testQuote{Mint: "mint", OutAmount: 12345}
	require.NoError(t, quotes.Set(ctx, "mint", expected))

	actual, ok, err := quotes.Get(ctx, "mint")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, expected, actual)

	// Namespaces don't collide over a shared store
	other := NewTTLCache[uint8](store, "decimals", time.Minute)
	_, ok, err = other.Get(ctx, "mint")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(10 * time.Second)
	_, ok, err = quotes.Get(ctx, "mint")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTTLCache_Delete(t *testing.T) {
	ctx := context.Background()
	decimals := NewTTLCache[uint8](NewMemoryStore(1<<10), "decimals", time.Minute)

	require.NoError(t, decimals.Set(ctx, "mint", 6))
	require.NoError(t, decimals.Delete(ctx, "mint"))

	_, ok, err := decimals.Get(ctx, "mint")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTTLCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(1 << 10)
	require.NoError(t, store.Set(ctx, "decimals:mint", []byte("not json"), time.Minute))

	_, ok, err := NewTTLCache[uint8](store, "decimals", time.Minute).Get(ctx, "mint")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(1 << 10)

	value := []byte("value")
	require.NoError(t, store.Set(ctx, "key", value, time.Minute))
	value[0] = 'X'

	actual, ok, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), actual)
}
