package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Store is a byte oriented backing store with per entry expiry.
type Store interface {
	// Get returns the value for key. Expired and missing entries report false.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key until ttl elapses.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the value for key, if any.
	Delete(ctx context.Context, key string) error
}

// TTLCache is a typed view over a Store. Values are JSON encoded so any Store
// implementation, local or shared, can back it.
type TTLCache[T any] struct {
	store     Store
	namespace string
	ttl       time.Duration
}

// NewTTLCache returns a cache whose keys are prefixed by namespace and whose
// entries live for ttl.
func NewTTLCache[T any](store Store, namespace string, ttl time.Duration) *TTLCache[T] {
	return &TTLCache[T]{
		store:     store,
		namespace: namespace,
		ttl:       ttl,
	}
}

// Get returns the cached value for key. A miss is not an error.
func (c *TTLCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var value T

	raw, ok, err := c.store.Get(ctx, c.key(key))
	if err != nil {
		return value, false, errors.Wrap(err, "error getting cache entry")
	} else if !ok {
		return value, false, nil
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, errors.Wrap(err, "error decoding cache entry")
	}
	return value, true, nil
}

// Set caches value under key for the cache's TTL.
func (c *TTLCache[T]) Set(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "error encoding cache entry")
	}

	if err := c.store.Set(ctx, c.key(key), raw, c.ttl); err != nil {
		return errors.Wrap(err, "error setting cache entry")
	}
	return nil
}

// Delete evicts the value for key.
func (c *TTLCache[T]) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.key(key))
}

func (c *TTLCache[T]) key(key string) string {
	return c.namespace + ":" + key
}
