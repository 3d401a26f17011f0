package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheRepository wraps Redis for small read-path caches (the pending
// badge count). Cache failures degrade to a direct query, never an
// error.
type CacheRepository struct {
	client *redis.Client
}

// NewCacheRepository constructs the repository.
func NewCacheRepository(client *redis.Client) *CacheRepository {
	return &CacheRepository{client: client}
}

// GetInt returns a cached integer and whether it was present.
func (r *CacheRepository) GetInt(ctx context.Context, key string) (int, bool) {
	if r == nil || r.client == nil {
		return 0, false
	}
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

// SetInt stores an integer with a TTL. Best effort.
func (r *CacheRepository) SetInt(ctx context.Context, key string, value int, ttl time.Duration) {
	if r == nil || r.client == nil {
		return
	}
	_ = r.client.Set(ctx, key, strconv.Itoa(value), ttl).Err()
}
