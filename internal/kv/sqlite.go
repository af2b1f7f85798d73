package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dokzlo13/entkv/internal/db"
)

// SQLiteClient is a persistent Client backed by SQLite.
// Expiry is enforced lazily on read and by CleanupExpired.
type SQLiteClient struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteClient creates a client on an open database whose schema is initialized.
func NewSQLiteClient(conn *sql.DB, opts ...Option) *SQLiteClient {
	o := buildOptions(opts)
	return &SQLiteClient{
		db:  conn,
		now: o.now,
	}
}

// OpenSQLite opens the database file at path and returns a client owning it.
func OpenSQLite(path string, opts ...Option) (*SQLiteClient, error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteClient(conn.DB, opts...), nil
}

func (c *SQLiteClient) nowMillis() int64 {
	return c.now().UTC().UnixMilli()
}

// Get retrieves a value by key.
func (c *SQLiteClient) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt sql.NullInt64

	err := c.db.QueryRowContext(ctx, `
		SELECT value, expires_at FROM kv_store
		WHERE key = ?
	`, key).Scan(&value, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value: %w", err)
	}

	// Check expiry
	if expiresAt.Valid && c.nowMillis() >= expiresAt.Int64 {
		// Expired - delete and return nil
		_, _ = c.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ? AND expires_at = ?`, key, expiresAt.Int64)
		return nil, nil
	}

	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Set saves a value with the given key and clears its expiry.
func (c *SQLiteClient) Set(ctx context.Context, key string, value []byte) error {
	now := c.nowMillis()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, expires_at, created_at, updated_at)
		VALUES (?, ?, NULL, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = NULL,
			updated_at = excluded.updated_at
	`, key, value, now, now)
	if err != nil {
		return fmt.Errorf("failed to store value: %w", err)
	}

	return nil
}

// Delete removes keys and returns how many rows were removed.
func (c *SQLiteClient) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}

	result, err := c.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys: %w", err)
	}

	affected, _ := result.RowsAffected()
	return affected, nil
}

// Keys returns all non-expired keys with the given prefix.
func (c *SQLiteClient) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT key FROM kv_store
		WHERE substr(key, 1, ?) = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key
	`, utf8.RuneCountInString(prefix), prefix, c.nowMillis())
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Expire sets a relative expiry on key.
func (c *SQLiteClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.setExpiry(ctx, key, c.now().Add(ttl))
}

// ExpireAt sets an absolute expiry on key.
func (c *SQLiteClient) ExpireAt(ctx context.Context, key string, at time.Time) error {
	return c.setExpiry(ctx, key, at)
}

func (c *SQLiteClient) setExpiry(ctx context.Context, key string, at time.Time) error {
	now := c.nowMillis()
	_, err := c.db.ExecContext(ctx, `
		UPDATE kv_store SET expires_at = ?, updated_at = ?
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, at.UTC().UnixMilli(), now, key, now)
	if err != nil {
		return fmt.Errorf("failed to set expiry: %w", err)
	}
	return nil
}

// HashGet returns a field of a hash table, or nil if absent.
func (c *SQLiteClient) HashGet(ctx context.Context, table, field string) ([]byte, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx, `
		SELECT value FROM kv_hash WHERE tbl = ? AND field = ?
	`, table, field).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hash field: %w", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// HashSet writes a field of a hash table.
func (c *SQLiteClient) HashSet(ctx context.Context, table, field string, value []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO kv_hash (tbl, field, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tbl, field) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, table, field, value, c.nowMillis())
	if err != nil {
		return fmt.Errorf("failed to set hash field: %w", err)
	}
	return nil
}

// CleanupExpired removes all expired entries from the database.
// This is typically called periodically by the janitor.
func (c *SQLiteClient) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, c.nowMillis())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired entries: %w", err)
	}

	return result.RowsAffected()
}

// Close closes the underlying database.
func (c *SQLiteClient) Close() error {
	return c.db.Close()
}
