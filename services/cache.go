package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"leakwatch-api/config"

	"github.com/redis/go-redis/v9"
)

const (
	LiveChannel = "leakwatch:live"

	SnapshotCacheKey     = "sensor-readings:latest"
	AnalyticsCacheKey    = "analytics:summary"
	LeakageTrendCacheKey = "analytics:trend:leakage"
	FlowTrendCacheKey    = "analytics:trend:flow-rate"
)

// cacheGenerationKey holds a counter bumped on every stored batch. Reading
// derived values are cached under VersionedKey, so a bump retires them all,
// including values written by requests that raced with the bump.
const cacheGenerationKey = "leakwatch:cache:generation"

func VersionedKey(key string, generation int64) string {
	return key + ":" + strconv.FormatInt(generation, 10)
}

// LiveEvent is the envelope published on LiveChannel.
type LiveEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	EventReading  = "reading"
	EventAlert    = "alert"
	EventPump     = "pump_status"
	EventForecast = "forecast"
)

// CacheService is a thin JSON layer over Redis. A CacheService without a
// client turns every call into a no-op so Redis stays optional.
type CacheService struct {
	client *redis.Client
}

func NewCacheService(ctx context.Context, cfg config.RedisConfig) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var lastErr error
	for i := 0; i < 5; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			return &CacheService{client: client}, nil
		}
		slog.Warn("redis ping failed", "attempt", i+1, "error", lastErr)
		select {
		case <-ctx.Done():
			_ = client.Close()
			return &CacheService{}, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	_ = client.Close()
	return &CacheService{}, fmt.Errorf("redis ping failed after 5 attempts: %w", lastErr)
}

// NewCacheServiceFromClient wraps an existing client; nil disables the cache.
func NewCacheServiceFromClient(client *redis.Client) *CacheService {
	return &CacheService{client: client}
}

func (s *CacheService) Available() bool {
	return s != nil && s.client != nil
}

// Get decodes the value at key into dest and reports whether it was present.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Available() {
		return false, nil
	}
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// Generation returns the current cache generation, 0 before the first bump.
func (s *CacheService) Generation(ctx context.Context) (int64, error) {
	if !s.Available() {
		return 0, nil
	}
	gen, err := s.client.Get(ctx, cacheGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Invalidate bumps the cache generation.
func (s *CacheService) Invalidate(ctx context.Context) error {
	if !s.Available() {
		return nil
	}
	return s.client.Incr(ctx, cacheGenerationKey).Err()
}

func (s *CacheService) Publish(ctx context.Context, channel string, message interface{}) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

// Subscribe returns nil when Redis is not configured.
func (s *CacheService) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	if !s.Available() {
		return nil
	}
	return s.client.Subscribe(ctx, channel)
}

func (s *CacheService) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}
