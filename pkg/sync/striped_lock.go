package sync

import (
	"fmt"
	base "sync"
)

const (
	hashEntriesPerLock = 200
)

// StripedLock maps a key space onto a fixed set of locks, so work on the same
// key is serialized without holding a lock per key
type StripedLock struct {
	locks    []base.Mutex
	hashRing *ring[int]
}

// NewStripedLock returns a new StripedLock with a static number of stripes
func NewStripedLock(stripes uint) *StripedLock {
	entries := make(map[string]int)
	for i := 0; i < int(stripes); i++ {
		entries[fmt.Sprintf("lock%d", i)] = i
	}

	return &StripedLock{
		locks:    make([]base.Mutex, stripes),
		hashRing: newRing(entries, hashEntriesPerLock),
	}
}

// Get gets the lock for a key
func (l *StripedLock) Get(key []byte) *base.Mutex {
	return &l.locks[l.hashRing.shard(key)]
}
