package sync

import (
	"encoding/binary"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring is a consistent hash ring over entries of type T
type ring[T any] struct {
	hashRing *treemap.Map

	// treemap.Map.Min() is O(log n), so the wrap around entry is cached
	minEntryValue T
}

// newRing returns a consistent hash ring where each entry is placed
// replicationFactor times
func newRing[T any](entries map[string]T, replicationFactor uint) *ring[T] {
	hashRing := treemap.NewWith(utils.Int64Comparator)
	for k, v := range entries {
		keyHash, _ := murmur3.Sum128([]byte(k))
		keyHashBytes := make([]byte, 8)
		binary.LittleEndian.PutUint64(keyHashBytes, keyHash)

		for i := 0; i < int(replicationFactor); i++ {
			indexBytes := make([]byte, 4)
			binary.LittleEndian.PutUint32(indexBytes, uint32(i))

			hasher := murmur3.New128()
			hasher.Write(keyHashBytes)
			hasher.Write(indexBytes)
			hash, _ := hasher.Sum128()
			hashRing.Put(int64(hash), v)
		}
	}

	r := &ring[T]{
		hashRing: hashRing,
	}
	if _, minEntryValue := hashRing.Min(); minEntryValue != nil {
		r.minEntryValue = minEntryValue.(T)
	}
	return r
}

// shard consistently hashes key to one of the ring's entries
func (r *ring[T]) shard(key []byte) T {
	raw, _ := murmur3.Sum128(key)
	_, entry := r.hashRing.Ceiling(int64(raw))
	if entry != nil {
		return entry.(T)
	}
	return r.minEntryValue
}
