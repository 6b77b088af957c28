// Package cache wraps a Redis connection for the two things the
// pipeline needs a distributed cache for: TTL-keyed wallet fingerprint
// caching and the dedup lock used by alert persistence. Modeled on
// franky69420-crypto-oracle's internal/storage/cache/redis.go wrapper,
// adapted to the key-space and atomic-set-if-absent semantics spec.md
// §6 calls for.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned when Redis cannot be reached. Callers that
// can safely degrade (the dedup lock has a DB-level safety net) should
// treat this as "proceed without the lock", not a fatal error.
var ErrUnavailable = errors.New("cache unavailable")

// Cache wraps a Redis client. Like the breaker registry, this handle is
// process-wide shared state by necessity: every caller needs to observe
// the same lock keys.
type Cache struct {
	client *redis.Client
	log    *logrus.Logger
}

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// New opens a connection to Redis and verifies it with a ping.
func New(cfg Config, log *logrus.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.WithField("addr", cfg.Addr).Info("Connected to distributed cache")

	return &Cache{client: client, log: log}, nil
}

// Close closes the underlying connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Get retrieves a raw string value. It returns ("", false, nil) on a
// cache miss and ("", false, ErrUnavailable) if Redis cannot be reached.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, true, nil
}

// Set stores a raw string value with a TTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// AcquireLock attempts to set key to owner with TTL only if it does not
// already exist (SETNX semantics). Returns false, nil if another holder
// owns the lock; returns false, ErrUnavailable if Redis is unreachable.
func (c *Cache) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// ReleaseLock deletes key only if its current value matches owner, so a
// worker never releases a lock it does not hold (e.g. after its own TTL
// expired and a sibling re-acquired it).
func (c *Cache) ReleaseLock(ctx context.Context, key, owner string) error {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`
	if err := c.client.Eval(ctx, script, []string{key}, owner).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
