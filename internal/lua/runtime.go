package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/entkv/internal/lua/modules"
	"github.com/dokzlo13/entkv/internal/store"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// Runtime hosts scripts that use the entity store.
// An LState is not goroutine safe; calls are serialized by mu.
type Runtime struct {
	L       *lua.LState
	store   *store.Store
	baseDir string

	mu     sync.Mutex
	closed bool
}

// Option configures a Runtime
type Option func(*runtimeOptions)

type runtimeOptions struct {
	now     func() time.Time
	baseDir string
}

// WithClock sets the clock behind entity.date() and utils.now()
func WithClock(now func() time.Time) Option {
	return func(o *runtimeOptions) { o.now = now }
}

// WithBaseDir sets where relative script paths are resolved when they do not
// exist in the working directory
func WithBaseDir(dir string) Option {
	return func(o *runtimeOptions) { o.baseDir = dir }
}

// NewRuntime creates a new Lua runtime bound to st
func NewRuntime(st *store.Store, opts ...Option) *Runtime {
	var o runtimeOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{
		L:       lua.NewState(),
		store:   st,
		baseDir: o.baseDir,
	}

	r.registerModules(o.now)

	return r
}

// registerModules registers all Lua modules
func (r *Runtime) registerModules(now func() time.Time) {
	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.L.PreloadModule("utils", modules.NewUtilsModule(now).Loader)
	r.L.PreloadModule("entity", modules.NewEntityModule(r.store, now).Loader)
}

// Close closes the Lua state. Calls after Close return ErrRuntimeClosed.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.L.Close()
}

// LoadScript loads and executes a Lua script file
func (r *Runtime) LoadScript(ctx context.Context, path string) error {
	// Resolve path relative to the base directory
	if !filepath.IsAbs(path) && r.baseDir != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = filepath.Join(r.baseDir, path)
		}
	}

	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.exec(ctx, func(L *lua.LState) error { return L.DoFile(path) }); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Msg("Lua script finished")
	return nil
}

// DoString executes a chunk of Lua source
func (r *Runtime) DoString(ctx context.Context, src string) error {
	return r.exec(ctx, func(L *lua.LState) error { return L.DoString(src) })
}

// exec runs fn on the state with ctx attached, recovering panics from Go callbacks
func (r *Runtime) exec(ctx context.Context, fn func(L *lua.LState) error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRuntimeClosed
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua execution panicked")
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()

	// Set context on LState so modules can access it via L.Context()
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	return fn(r.L)
}
