package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions describes how to reach a Redis server.
// URL takes precedence over Addr/Password/DB when set.
type RedisOptions struct {
	URL         string
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// RedisClient is a Client backed by a Redis server.
// Redis enforces expiry itself, so no sweeping is needed.
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient wraps an existing go-redis client.
func NewRedisClient(rdb *redis.Client) *RedisClient {
	return &RedisClient{rdb: rdb}
}

// DialRedis connects to Redis and verifies the connection with PING.
func DialRedis(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	ropts, err := redisOptions(opts)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", ropts.Addr, err)
	}

	return NewRedisClient(rdb), nil
}

func redisOptions(opts RedisOptions) (*redis.Options, error) {
	var ropts *redis.Options
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		ropts = parsed
	} else {
		ropts = &redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}
	}
	if opts.DialTimeout > 0 {
		ropts.DialTimeout = opts.DialTimeout
	}
	// Reconnection is the supervisor's job.
	ropts.MaxRetries = -1
	return ropts, nil
}

// Get retrieves a value by key.
func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value: %w", err)
	}
	return value, nil
}

// Set saves a value with the given key. SET clears any existing TTL.
func (c *RedisClient) Set(ctx context.Context, key string, value []byte) error {
	if err := c.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to store value: %w", err)
	}
	return nil
}

// Delete removes keys and returns how many existed.
func (c *RedisClient) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys: %w", err)
	}
	return n, nil
}

// Keys returns all keys with the given prefix using KEYS.
func (c *RedisClient) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := c.rdb.Keys(ctx, escapeGlob(prefix)+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// Expire sets a relative expiry on key, in whole seconds.
func (c *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set expiry: %w", err)
	}
	return nil
}

// ExpireAt sets an absolute expiry on key.
func (c *RedisClient) ExpireAt(ctx context.Context, key string, at time.Time) error {
	if err := c.rdb.ExpireAt(ctx, key, at).Err(); err != nil {
		return fmt.Errorf("failed to set expiry: %w", err)
	}
	return nil
}

// HashGet returns a field of a hash table, or nil if absent.
func (c *RedisClient) HashGet(ctx context.Context, table, field string) ([]byte, error) {
	value, err := c.rdb.HGet(ctx, table, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hash field: %w", err)
	}
	return value, nil
}

// HashSet writes a field of a hash table.
func (c *RedisClient) HashSet(ctx context.Context, table, field string, value []byte) error {
	if err := c.rdb.HSet(ctx, table, field, value).Err(); err != nil {
		return fmt.Errorf("failed to set hash field: %w", err)
	}
	return nil
}

// Native returns the underlying go-redis client.
func (c *RedisClient) Native() *redis.Client {
	return c.rdb
}

// Close closes the connection pool.
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

// escapeGlob escapes the characters KEYS treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
