// Package kv provides the key-value clients the entity store runs on:
// an in-memory client, a SQLite-backed client and a Redis client, plus a
// supervisor that reconnects dropped connections with exponential backoff.
package kv

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotConnected is returned while no connection to the store is available.
var ErrNotConnected = errors.New("kv: not connected")

// Client is the set of store primitives the entity store is built on.
// Every call may fail with a connectivity error; clients never retry.
type Client interface {
	// Get returns the value at key, or nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes the value at key, clearing any expiry.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// Keys returns all live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Expire sets a relative time-to-live on key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ExpireAt sets an absolute expiry on key.
	ExpireAt(ctx context.Context, key string, at time.Time) error

	// HashGet returns field from hash table, or nil if absent.
	HashGet(ctx context.Context, table, field string) ([]byte, error)

	// HashSet writes field in hash table.
	HashSet(ctx context.Context, table, field string, value []byte) error

	// Close releases the connection.
	Close() error
}

// Expirer is implemented by clients that enforce expiry themselves
// and need expired entries swept periodically.
type Expirer interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Option configures the memory and SQLite clients.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// IsConnectivity reports whether err means the store is unreachable
// or the connection dropped, as opposed to a protocol or data error.
func IsConnectivity(err error) bool {
	// Caller deadlines satisfy net.Error but say nothing about the connection.
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotConnected) ||
		errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
