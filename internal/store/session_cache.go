/**
 * @description
 * This file implements the upstream session cache on Redis. Session keys are
 * encrypted before they are written and expire through native Redis TTLs.
 *
 * @notes
 * - The cache is never a hard dependency: read failures behave as a miss and write
 *   failures are logged and dropped. A nil client turns every call into a no-op.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client.
 * - github.com/rs/zerolog: Structured logging.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StringSealer encrypts and decrypts cached values.
type StringSealer interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
}

// RedisSessionCache is the Redis implementation of SessionCache.
type RedisSessionCache struct {
	client redis.UniversalClient
	sealer StringSealer
	logger zerolog.Logger
}

func NewRedisSessionCache(client redis.UniversalClient, sealer StringSealer, logger zerolog.Logger) *RedisSessionCache {
	return &RedisSessionCache{
		client: client,
		sealer: sealer,
		logger: logger.With().Str("component", "session_cache").Logger(),
	}
}

// SessionCacheKey is the cache key of the session of userID for directoryID.
func SessionCacheKey(userID int64, directoryID uuid.UUID) string {
	return fmt.Sprintf("u:%d::bd:%s", userID, directoryID)
}

func (c *RedisSessionCache) Get(ctx context.Context, userID int64, directoryID uuid.UUID) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}

	sealed, err := c.client.Get(ctx, SessionCacheKey(userID, directoryID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Int64("user_id", userID).Str("directory_id", directoryID.String()).
				Msg("session cache read failed; treating as miss")
		}
		return "", false
	}

	key, err := c.sealer.DecryptString(sealed)
	if err != nil {
		c.logger.Error().Int64("user_id", userID).Str("directory_id", directoryID.String()).
			Msg("cached session could not be decrypted; treating as miss")
		return "", false
	}
	return key, true
}

func (c *RedisSessionCache) Put(ctx context.Context, userID int64, directoryID uuid.UUID, sessionKey string, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}

	sealed, err := c.sealer.EncryptString(sessionKey)
	if err != nil {
		c.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to encrypt session key; not caching")
		return
	}
	if err := c.client.SetEx(ctx, SessionCacheKey(userID, directoryID), sealed, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Int64("user_id", userID).Str("directory_id", directoryID.String()).
			Msg("session cache write failed")
	}
}

func (c *RedisSessionCache) Delete(ctx context.Context, userID int64, directoryID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, SessionCacheKey(userID, directoryID)).Err(); err != nil {
		c.logger.Warn().Err(err).Int64("user_id", userID).Str("directory_id", directoryID.String()).
			Msg("session cache eviction failed")
	}
}
