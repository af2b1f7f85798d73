package app

import (
	"context"

	"github.com/dokzlo13/entkv/internal/config"
	luart "github.com/dokzlo13/entkv/internal/lua"
	"github.com/dokzlo13/entkv/internal/store"
)

// LuaService wraps the Lua runtime bound to the entity store.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
}

// NewLuaService creates a new LuaService.
func NewLuaService(cfg *config.Config, st *store.Store, baseDir string) *LuaService {
	return &LuaService{
		cfg:     cfg,
		Runtime: luart.NewRuntime(st, luart.WithBaseDir(baseDir)),
	}
}

// RunScript executes path, or the configured script when path is empty.
func (s *LuaService) RunScript(ctx context.Context, path string) error {
	if path == "" {
		path = s.cfg.Script
	}
	return s.Runtime.LoadScript(ctx, path)
}

// Close closes the Lua runtime.
func (s *LuaService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
