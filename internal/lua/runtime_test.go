package lua

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/entkv/internal/kv"
	"github.com/dokzlo13/entkv/internal/store"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newTestRuntime(t *testing.T) (*Runtime, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	st := store.New(kv.NewMemoryClient(kv.WithClock(clock.Now)))
	r := NewRuntime(st, WithClock(clock.Now))
	t.Cleanup(func() {
		r.Close()
		st.Close()
	})
	return r, clock
}

func run(t *testing.T, r *Runtime, src string) {
	t.Helper()
	if err := r.DoString(context.Background(), src); err != nil {
		t.Fatalf("script failed: %v", err)
	}
}

func TestEntityModule_SaveLoadListRemove(t *testing.T) {
	r, _ := newTestRuntime(t)

	run(t, r, `
		local entity = require("entity")

		local u = assert(entity.save("sys/user", { id = 1, data = 111 }))
		assert(u.id == "1", "id should be a string")

		local got = entity.load("sys/user", 1)
		assert(got ~= nil, "load returned nil")
		assert(got.data == 111, "data mismatch")

		assert(entity.load("sys/user", "missing") == nil)

		entity.save("sys/user", { id = 2, data = 222, tags = { "a", "b" } })
		entity.save("sys/user", { id = 3, data = 111 })

		local list = entity.list("sys/user", { data = 111 })
		assert(#list == 2, "expected 2 matches, got " .. #list)

		local all = entity.list("sys/user")
		assert(#all == 3)

		local tagged = entity.load("sys/user", 2)
		assert(tagged.tags[2] == "b", "nested object lost")

		assert(entity.remove("sys/user", { data = 111 }) == 2)
		assert(entity.remove("sys/user", { id = "nope" }) == 0)
		assert(entity.remove("sys/user", { all = true }) == 1)
		assert(#entity.list("sys/user") == 0)
	`)
}

func TestEntityModule_Dates(t *testing.T) {
	r, _ := newTestRuntime(t)

	run(t, r, `
		local entity = require("entity")

		local when = entity.date("2023-05-06T07:08:09Z")
		entity.save("event", { id = "e1", at = when })

		local got = entity.load("event", "e1")
		assert(got.at == when, "date did not round trip: " .. tostring(got.at))
		assert(got.at:unix() == 1683356889)
		assert(entity.date(1683356889) == when)
		assert(entity.date():iso() == "2024-06-01T00:00:00Z")

		assert(#entity.list("event", { at = when }) == 1)
	`)
}

func TestEntityModule_Expire(t *testing.T) {
	r, clock := newTestRuntime(t)

	run(t, r, `
		local entity = require("entity")
		entity.save("tmp", { id = "a" }, { expire = 2 })
		entity.save("tmp", { id = "b" }, { expire_at = entity.date(1717200060) })
		assert(entity.load("tmp", "a") ~= nil)
	`)

	clock.t = clock.t.Add(3 * time.Second)

	run(t, r, `
		local entity = require("entity")
		assert(entity.load("tmp", "a") == nil, "a should have expired")
		assert(entity.load("tmp", "b") ~= nil, "b expired early")
	`)

	clock.t = clock.t.Add(time.Minute)

	run(t, r, `
		assert(require("entity").load("tmp", "b") == nil, "b should have expired")
	`)
}

func TestEntityModule_Errors(t *testing.T) {
	r, _ := newTestRuntime(t)

	run(t, r, `
		local entity = require("entity")
		local v, err = entity.load("sys/user", "")
		assert(v == nil and err ~= nil, "expected missing id error")

		local ok = pcall(entity.date, {})
		assert(not ok, "date should reject tables")
	`)
}

func TestRuntime_LoadScript(t *testing.T) {
	r, _ := newTestRuntime(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "seed.lua")
	script := `
		local log = require("log")
		local entity = require("entity")
		entity.save("seed", { id = "x", n = 1 })
		log.info("seeded", { table = "seed" })
	`
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := r.LoadScript(context.Background(), path); err != nil {
		t.Fatalf("LoadScript() error: %v", err)
	}
	run(t, r, `assert(require("entity").load("seed", "x").n == 1)`)

	if err := r.LoadScript(context.Background(), filepath.Join(dir, "missing.lua")); err == nil {
		t.Error("LoadScript() expected error for missing file")
	}
}

func TestRuntime_Closed(t *testing.T) {
	r, _ := newTestRuntime(t)
	r.Close()

	if err := r.DoString(context.Background(), "return 1"); err != ErrRuntimeClosed {
		t.Errorf("DoString() after Close = %v, want ErrRuntimeClosed", err)
	}
}
