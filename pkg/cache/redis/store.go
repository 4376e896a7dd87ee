package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/code-payments/reclaim-server/pkg/cache"
)

type store struct {
	client redis.UniversalClient
}

// New returns a cache.Store backed by redis. Expiry is delegated to redis, so
// entries are shared by every process pointed at the same instance.
func New(client redis.UniversalClient) cache.Store {
	return &store{
		client: client,
	}
}

// NewFromAddress connects to the redis instance at addr and verifies it is
// reachable.
func NewFromAddress(ctx context.Context, addr, password string, db int) (cache.Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "error connecting to redis")
	}

	return New(client), nil
}

// Get implements cache.Store.Get
func (s *store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set implements cache.Store.Set
func (s *store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete implements cache.Store.Delete
func (s *store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
