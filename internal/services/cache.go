package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache TTLs per data class.
const (
	ModelResponseTTL = 24 * time.Hour
	StatisticsTTL    = 6 * time.Hour
	MaturityScoreTTL = 12 * time.Hour
	HealthProbeTTL   = 30 * time.Second
)

// CacheService provides JSON caching over Redis for the tip pipeline.
type CacheService struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCacheService(redisClient *redis.Client, logger *logrus.Logger) *CacheService {
	return &CacheService{
		client: redisClient,
		logger: logger,
	}
}

// BuildKey constructs consistent, service-prefixed cache keys.
func (c *CacheService) BuildKey(elements ...string) string {
	return fmt.Sprintf("tips-service:%s", strings.Join(elements, ":"))
}

// Set stores a JSON-marshalled value with a TTL.
func (c *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Failed to set cache value")
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"key": key,
		"ttl": ttl.String(),
	}).Debug("Cached value successfully")

	return nil
}

// Get retrieves a value into dest. Returns ErrCacheMiss when absent.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		c.logger.WithError(err).WithField("key", key).Error("Failed to get cache value")
		return err
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Failed to unmarshal cache value")
		return err
	}

	c.logger.WithField("key", key).Debug("Cache hit")
	return nil
}

// Delete removes a key.
func (c *CacheService) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Failed to delete cache value")
		return err
	}
	return nil
}

// HealthCheck pings Redis.
func (c *CacheService) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
