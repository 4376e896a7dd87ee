package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_PutWithinBudget(t *testing.T) {
	c := newLRU(3)
	c.put("A", "valueA", 1)
	c.put("B", "valueB", 1)
	c.put("C", "valueC", 1)

	assert.Equal(t, 3, c.currentWeight())
}

func TestLRU_PutReplacesExisting(t *testing.T) {
	c := newLRU(10)
	c.put("A", "first", 4)
	c.put("A", "second", 2)

	assert.Equal(t, 2, c.currentWeight())

	v, ok := c.get("A")
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRU(2)
	c.put("evicted", "valueEvicted", 1)
	c.put("A", "valueA", 1)
	c.put("B", "valueB", 1)

	_, ok := c.get("evicted")
	assert.False(t, ok)

	_, okA := c.get("A")
	_, okB := c.get("B")
	assert.True(t, okA)
	assert.True(t, okB)
	assert.Equal(t, 2, c.currentWeight())
}

func TestLRU_EvictsLeastRecentlyRetrieved(t *testing.T) {
	c := newLRU(2)
	c.put("A", "valueA", 1)
	c.put("B", "valueB", 1)

	// Accessing A leaves B as the eviction candidate
	c.get("A")
	c.put("C", "valueC", 1)

	_, ok := c.get("B")
	assert.False(t, ok)
	_, ok = c.get("A")
	assert.True(t, ok)
}

func TestLRU_OversizedEntryIsNotRetained(t *testing.T) {
	c := newLRU(2)
	c.put("big", "valueBig", 3)

	_, ok := c.get("big")
	assert.False(t, ok)
	assert.Equal(t, 0, c.currentWeight())
}

func TestLRU_Remove(t *testing.T) {
	c := newLRU(5)
	c.put("A", "valueA", 2)
	c.put("B", "valueB", 2)
	c.remove("A")
	c.remove("missing")

	_, ok := c.get("A")
	assert.False(t, ok)
	assert.Equal(t, 2, c.currentWeight())

	// The list remains usable after unlinking the tail
	c.put("C", "valueC", 3)
	_, ok = c.get("B")
	assert.True(t, ok)
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := newLRU(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("%d-%d", i, j%20)
				c.put(key, j, 1)
				c.get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.currentWeight(), 100)
}
