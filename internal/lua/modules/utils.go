package modules

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

// UtilsModule provides utility functions to Lua
type UtilsModule struct {
	now func() time.Time
}

// NewUtilsModule creates a new utils module. A nil clock means time.Now.
func NewUtilsModule(now func() time.Time) *UtilsModule {
	if now == nil {
		now = time.Now
	}
	return &UtilsModule{now: now}
}

// Loader is the module loader for Lua
func (m *UtilsModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "sleep", L.NewFunction(m.sleep))
	L.SetField(mod, "now", L.NewFunction(m.unixNow))

	L.Push(mod)
	return 1
}

// sleep(ms) - Sleep for specified milliseconds, or until the script is cancelled
func (m *UtilsModule) sleep(L *lua.LState) int {
	ms := L.CheckInt(1)
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	ctx := L.Context()
	if ctx == nil {
		<-timer.C
		return 0
	}
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return 0
}

// now() -> unix seconds with fraction
func (m *UtilsModule) unixNow(L *lua.LState) int {
	t := m.now()
	L.Push(lua.LNumber(float64(t.UnixNano()) / float64(time.Second)))
	return 1
}
