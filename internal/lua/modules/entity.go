package modules

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/entkv/internal/entity"
	"github.com/dokzlo13/entkv/internal/store"
)

// EntityModule provides the entity module to Lua.
//
//	local entity = require("entity")
//	local u = entity.save("sys/user", { data = 111, seen = entity.date() }, { expire = 60 })
//	entity.load("sys/user", u.id)
//	entity.list("sys/user", { data = 111 })
//	entity.remove("sys/user", { all = true })
//
// Failed calls return nil and an error message.
type EntityModule struct {
	store *store.Store
	now   func() time.Time
}

// NewEntityModule creates a new entity module. A nil clock means time.Now.
func NewEntityModule(st *store.Store, now func() time.Time) *EntityModule {
	if now == nil {
		now = time.Now
	}
	return &EntityModule{store: st, now: now}
}

// Loader is the module loader for Lua.
func (m *EntityModule) Loader(L *lua.LState) int {
	// Register date userdata type
	mt := L.NewTypeMetatable(dateTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), dateMethods))
	L.SetField(mt, "__tostring", L.NewFunction(dateISO))
	L.SetField(mt, "__eq", L.NewFunction(dateEq))

	mod := L.NewTable()

	L.SetField(mod, "save", L.NewFunction(m.save))
	L.SetField(mod, "load", L.NewFunction(m.load))
	L.SetField(mod, "list", L.NewFunction(m.list))
	L.SetField(mod, "remove", L.NewFunction(m.remove))
	L.SetField(mod, "date", L.NewFunction(m.date))

	L.Push(mod)
	return 1
}

func luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// fail pushes (nil, message) and logs the error.
func fail(L *lua.LState, op string, canon entity.Canon, err error) int {
	log.Warn().Err(err).Str("op", op).Stringer("canon", canon).Msg("Lua entity call failed")
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}

// save(canon, fields, opts) -> record | nil, err
// opts: { id = "x", expire = seconds, expire_at = date | unix seconds }
func (m *EntityModule) save(L *lua.LState) int {
	canon := entity.ParseCanon(L.CheckString(1))
	fields := LuaTableToMap(L.CheckTable(2))

	var opts store.SaveOptions
	if optsTable := L.OptTable(3, nil); optsTable != nil {
		if id := L.GetField(optsTable, "id"); id != lua.LNil {
			opts.ID = entity.IDString(LuaToGo(id))
		}
		if ttl, ok := L.GetField(optsTable, "expire").(lua.LNumber); ok {
			d := time.Duration(float64(ttl) * float64(time.Second))
			opts.Expire = &d
		}
		if at := L.GetField(optsTable, "expire_at"); at != lua.LNil {
			t, ok := m.toTime(at)
			if !ok {
				L.ArgError(3, "expire_at must be a date or unix seconds")
				return 0
			}
			opts.ExpireAt = &t
		}
	}

	e, err := m.store.Save(luaContext(L), entity.FromMap(canon, fields), opts)
	if err != nil {
		return fail(L, "save", canon, err)
	}

	L.Push(MapToLuaTable(L, e.Map()))
	return 1
}

// load(canon, id) -> record | nil
func (m *EntityModule) load(L *lua.LState) int {
	canon := entity.ParseCanon(L.CheckString(1))
	id := entity.IDString(LuaToGo(L.CheckAny(2)))

	e, err := m.store.Load(luaContext(L), canon, id)
	if err != nil {
		return fail(L, "load", canon, err)
	}
	if e == nil {
		L.Push(lua.LNil)
		return 1
	}

	L.Push(MapToLuaTable(L, e.Map()))
	return 1
}

// list(canon, filter) -> { record, ... }
func (m *EntityModule) list(L *lua.LState) int {
	canon := entity.ParseCanon(L.CheckString(1))

	var filter store.Filter
	if tbl := L.OptTable(2, nil); tbl != nil {
		filter = LuaTableToMap(tbl)
	}

	list, err := m.store.List(luaContext(L), canon, filter)
	if err != nil {
		return fail(L, "list", canon, err)
	}

	tbl := L.NewTable()
	for i, e := range list {
		tbl.RawSetInt(i+1, MapToLuaTable(L, e.Map()))
	}

	L.Push(tbl)
	return 1
}

// remove(canon, query) -> count
// query: { all = true } removes every record, any other table is a filter.
func (m *EntityModule) remove(L *lua.LState) int {
	canon := entity.ParseCanon(L.CheckString(1))
	query := LuaTableToMap(L.CheckTable(2))

	var q store.RemoveQuery
	if all, ok := query["all"].(bool); ok {
		q.All = all
		delete(query, "all")
	}
	if !q.All {
		q.Filter = query
	}

	n, err := m.store.Remove(luaContext(L), canon, q)
	if err != nil {
		return fail(L, "remove", canon, err)
	}

	L.Push(lua.LNumber(n))
	return 1
}

// date(value) -> date
// value: unix seconds, an RFC 3339 string, or nothing for now.
func (m *EntityModule) date(L *lua.LState) int {
	if L.GetTop() == 0 || L.Get(1) == lua.LNil {
		L.Push(newDate(L, m.now().UTC()))
		return 1
	}

	t, ok := m.toTime(L.Get(1))
	if !ok {
		L.ArgError(1, "unix seconds or RFC 3339 string expected")
		return 0
	}
	L.Push(newDate(L, t))
	return 1
}

func (m *EntityModule) toTime(v lua.LValue) (time.Time, bool) {
	switch val := v.(type) {
	case lua.LNumber:
		secs := float64(val)
		return time.Unix(0, int64(secs*float64(time.Second))).UTC(), true
	case lua.LString:
		t, err := time.Parse(time.RFC3339Nano, string(val))
		return t, err == nil
	case *lua.LUserData:
		t, ok := val.Value.(time.Time)
		return t, ok
	}
	return time.Time{}, false
}

// Date methods accessible from Lua
var dateMethods = map[string]lua.LGFunction{
	"unix": dateUnix,
	"iso":  dateISO,
}

func checkDate(L *lua.LState, pos int) time.Time {
	ud := L.CheckUserData(pos)
	if t, ok := ud.Value.(time.Time); ok {
		return t
	}
	L.ArgError(pos, "date expected")
	return time.Time{}
}

// unix() -> seconds
func dateUnix(L *lua.LState) int {
	t := checkDate(L, 1)
	L.Push(lua.LNumber(float64(t.UnixNano()) / float64(time.Second)))
	return 1
}

// iso() -> RFC 3339 string
func dateISO(L *lua.LState) int {
	t := checkDate(L, 1)
	L.Push(lua.LString(t.Format(time.RFC3339Nano)))
	return 1
}

func dateEq(L *lua.LState) int {
	a := checkDate(L, 1)
	b := checkDate(L, 2)
	L.Push(lua.LBool(a.Equal(b)))
	return 1
}
