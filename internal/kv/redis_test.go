package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := DialRedis(context.Background(), RedisOptions{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("DialRedis() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisClient(t *testing.T) {
	clientContract(t, func(t *testing.T, _ *fakeClock) Client {
		c, _ := newRedis(t)
		return c
	})
}

func TestRedisClient_Expire(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedis(t)

	_ = c.Set(ctx, "k", []byte("v"))
	if err := c.Expire(ctx, "k", 2*time.Second); err != nil {
		t.Fatalf("Expire() error: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != 2*time.Second {
		t.Errorf("TTL = %v, want 2s", ttl)
	}

	mr.FastForward(3 * time.Second)
	if v, _ := c.Get(ctx, "k"); v != nil {
		t.Error("key should have expired")
	}
}

func TestRedisClient_SetClearsTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedis(t)

	_ = c.Set(ctx, "k", []byte("v"))
	_ = c.Expire(ctx, "k", time.Second)
	_ = c.Set(ctx, "k", []byte("v2"))

	if ttl := mr.TTL("k"); ttl != 0 {
		t.Errorf("TTL after Set = %v, want none", ttl)
	}
}

func TestDialRedis_URL(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("secret")

	c, err := DialRedis(context.Background(), RedisOptions{URL: "redis://:secret@" + mr.Addr()})
	if err != nil {
		t.Fatalf("DialRedis() error: %v", err)
	}
	defer c.Close()

	if err := c.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Errorf("Set() error: %v", err)
	}
}

func TestDialRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := DialRedis(context.Background(), RedisOptions{Addr: addr, DialTimeout: 200 * time.Millisecond})
	if err == nil {
		t.Fatal("DialRedis() to a closed server should fail")
	}
	if !IsConnectivity(err) {
		t.Errorf("IsConnectivity(%v) = false, want true", err)
	}
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"foo_", "foo_"},
		{"a*_", `a\*_`},
		{"x?[y]", `x\?\[y\]`},
	}
	for _, tt := range tests {
		if got := escapeGlob(tt.in); got != tt.want {
			t.Errorf("escapeGlob(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
