package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Qompa-Fi/banking-service/internal/domain"
)

// ProviderCatalogKey holds the serialized provider catalog.
const ProviderCatalogKey = "prometeo-providers"

// RedisProviderCache is the Redis implementation of ProviderCache.
type RedisProviderCache struct {
	client redis.UniversalClient
	logger zerolog.Logger
}

func NewRedisProviderCache(client redis.UniversalClient, logger zerolog.Logger) *RedisProviderCache {
	return &RedisProviderCache{
		client: client,
		logger: logger.With().Str("component", "provider_cache").Logger(),
	}
}

func (c *RedisProviderCache) GetProviders(ctx context.Context) ([]domain.Provider, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, ProviderCatalogKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("provider cache read failed")
		}
		return nil, false
	}
	var providers []domain.Provider
	if err := json.Unmarshal(raw, &providers); err != nil || len(providers) == 0 {
		c.logger.Warn().Msg("cached provider catalog is unreadable; ignoring")
		return nil, false
	}
	return providers, true
}

func (c *RedisProviderCache) PutProviders(ctx context.Context, providers []domain.Provider, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(providers)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode provider catalog")
		return
	}
	if err := c.client.SetEx(ctx, ProviderCatalogKey, raw, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("provider cache write failed")
	}
}
