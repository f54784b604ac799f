package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/config"
)

var (
	RedisClient *redis.Client

	// ErrRedisNotInitialized is returned when InitRedis has not been called
	ErrRedisNotInitialized = errors.New("redis client not initialized")
)

// InitRedis initializes the shared Redis client
func InitRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	RedisClient = client
	logrus.WithField("addr", cfg.Addr()).Info("Connected to Redis")
	return client, nil
}

// CacheSet stores a value in Redis with expiration
func CacheSet(ctx context.Context, key string, value string, expiration time.Duration) error {
	if RedisClient == nil {
		return ErrRedisNotInitialized
	}
	return RedisClient.Set(ctx, key, value, expiration).Err()
}

// CacheDelete removes a key from Redis
func CacheDelete(ctx context.Context, key string) error {
	if RedisClient == nil {
		return ErrRedisNotInitialized
	}
	return RedisClient.Del(ctx, key).Err()
}

// CacheExists checks if a key exists in Redis
func CacheExists(ctx context.Context, key string) (bool, error) {
	if RedisClient == nil {
		return false, ErrRedisNotInitialized
	}
	count, err := RedisClient.Exists(ctx, key).Result()
	return count > 0, err
}

// GetRedisClient returns the Redis client instance (for pub/sub and other advanced operations)
func GetRedisClient() *redis.Client {
	return RedisClient
}

// CloseRedis closes the Redis connection
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// Refresh token blacklist

// BlacklistKey is the cache key marking a refresh token as revoked
func BlacklistKey(userID, tokenID string) string {
	return fmt.Sprintf("blacklist:%s:%s", userID, tokenID)
}

// BlacklistToken revokes a refresh token until it would have expired anyway.
// Tokens that are already expired are not stored.
func BlacklistToken(ctx context.Context, userID, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return CacheSet(ctx, BlacklistKey(userID, tokenID), fmt.Sprint(time.Now().Unix()), ttl)
}

// IsTokenBlacklisted reports whether the refresh token was revoked
func IsTokenBlacklisted(ctx context.Context, userID, tokenID string) (bool, error) {
	return CacheExists(ctx, BlacklistKey(userID, tokenID))
}
