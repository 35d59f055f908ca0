package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ripple/internal/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - profile:{user_id} - 5m TTL, public profile cache for list enrichment

type CacheConfig struct {
	ProfileTTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{ProfileTTL: 5 * time.Minute}
}

// CacheStore handles caching in Redis
type CacheStore struct {
	client *goredis.Client
	config CacheConfig
}

func NewCacheStore(client *goredis.Client, config CacheConfig) *CacheStore {
	return &CacheStore{client: client, config: config}
}

// GetProfile retrieves a profile from cache. A nil result is a cache miss.
func (c *CacheStore) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	key := fmt.Sprintf("profile:%s", userID.String())
	data, err := c.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p domain.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *CacheStore) SetProfile(ctx context.Context, p domain.Profile) error {
	key := fmt.Sprintf("profile:%s", p.ID.String())
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.config.ProfileTTL).Err()
}
