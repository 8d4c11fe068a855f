// Package cache provides a Redis-backed candle cache in front of the
// Binance REST client. When Redis is unavailable the cache degrades
// gracefully: reads fall through to the underlying source and writes are
// dropped.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ict-analyzer/internal/market"
)

// Config holds Redis connection settings.
type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// CandleCache caches candle series keyed by symbol, interval and limit.
// A small circuit breaker marks Redis unhealthy after consecutive
// failures so a dead Redis does not add latency to every analysis call.
type CandleCache struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// New connects to Redis. A failed initial ping returns the cache in
// degraded mode rather than an error; Redis may come up later.
func New(cfg Config, logger zerolog.Logger) *CandleCache {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	c := &CandleCache{
		client:        client,
		logger:        logger.With().Str("component", "candle-cache").Logger(),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("initial Redis connection failed, cache degraded")
		return c
	}

	c.healthy = true
	c.lastCheck = time.Now()
	c.logger.Info().Str("address", cfg.Address).Msg("Redis connected")
	return c
}

// IsHealthy reports whether Redis is currently usable.
func (c *CandleCache) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

func (c *CandleCache) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= c.maxFailures {
		if c.healthy {
			c.logger.Warn().Int("failures", c.failureCount).Msg("circuit open, Redis marked unhealthy")
		}
		c.healthy = false
	}
}

func (c *CandleCache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.healthy {
		c.logger.Info().Msg("circuit closed, Redis recovered")
	}
	c.healthy = true
	c.failureCount = 0
	c.lastCheck = time.Now()
}

// checkHealth pings Redis in the background once the check interval has
// passed while unhealthy.
func (c *CandleCache) checkHealth() {
	c.mu.RLock()
	shouldCheck := !c.healthy && time.Since(c.lastCheck) >= c.checkInterval
	c.mu.RUnlock()
	if !shouldCheck {
		return
	}

	c.mu.Lock()
	c.lastCheck = time.Now()
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.client.Ping(ctx).Err(); err == nil {
			c.recordSuccess()
		}
	}()
}

func candleKey(symbol, interval string, limit int) string {
	return fmt.Sprintf("klines:%s:%s:%d", symbol, interval, limit)
}

// ttlForInterval scales the cache lifetime with the candle interval: a 1m
// series goes stale within the minute, a daily series is good for hours.
func ttlForInterval(interval string) time.Duration {
	switch interval {
	case "1m":
		return 30 * time.Second
	case "5m":
		return 2 * time.Minute
	case "15m":
		return 5 * time.Minute
	case "1h":
		return 20 * time.Minute
	case "4h":
		return time.Hour
	case "1d":
		return 12 * time.Hour
	default:
		return 5 * time.Minute
	}
}

// Get returns the cached series, or nil on a miss or unhealthy Redis.
func (c *CandleCache) Get(ctx context.Context, symbol, interval string, limit int) []market.Candle {
	c.checkHealth()
	if !c.IsHealthy() {
		return nil
	}

	raw, err := c.client.Get(ctx, candleKey(symbol, interval, limit)).Result()
	if err == redis.Nil {
		c.recordSuccess()
		return nil
	}
	if err != nil {
		c.recordFailure()
		return nil
	}
	c.recordSuccess()

	var candles []market.Candle
	if err := json.Unmarshal([]byte(raw), &candles); err != nil {
		c.logger.Warn().Err(err).Msg("corrupt cache entry, dropping")
		return nil
	}
	return candles
}

// Set stores the series with an interval-scaled TTL. Failures are logged
// and dropped; caching is best effort.
func (c *CandleCache) Set(ctx context.Context, symbol, interval string, limit int, candles []market.Candle) {
	if !c.IsHealthy() {
		return
	}

	raw, err := json.Marshal(candles)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to marshal candles")
		return
	}

	if err := c.client.Set(ctx, candleKey(symbol, interval, limit), raw, ttlForInterval(interval)).Err(); err != nil {
		c.recordFailure()
		return
	}
	c.recordSuccess()
}

// Close releases the Redis connection pool.
func (c *CandleCache) Close() error {
	return c.client.Close()
}
