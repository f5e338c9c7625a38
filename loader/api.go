package loader

import (
	"fmt"
	"sort"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/responserules/engine/state"
)

// registerAPI registers the facts-script globals.
func registerAPI(L *lua.LState, facts *state.Facts) {
	// Fact("name", value[, weight])
	L.SetGlobal("Fact", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		value, err := luaString(L.Get(2))
		if err != nil {
			L.ArgError(2, err.Error())
			return 0
		}
		weight := float64(L.OptNumber(3, 1))
		facts.AppendWeighted(name, value, weight)
		return 0
	}))

	// Forget("name")
	L.SetGlobal("Forget", L.NewFunction(func(L *lua.LState) int {
		facts.Remove(L.CheckString(1))
		return 0
	}))

	// Has("name") -> bool
	L.SetGlobal("Has", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(facts.Find(L.CheckString(1)) >= 0))
		return 1
	}))
}

// appendTable adds the string-keyed entries of tbl in sorted key order.
func appendTable(facts *state.Facts, tbl *lua.LTable) error {
	values := map[string]string{}
	var keys []string
	var bad error
	tbl.ForEach(func(k, v lua.LValue) {
		ks, ok := k.(lua.LString)
		if !ok || bad != nil {
			return
		}
		s, err := luaString(v)
		if err != nil {
			bad = fmt.Errorf("fact %q: %w", string(ks), err)
			return
		}
		keys = append(keys, string(ks))
		values[string(ks)] = s
	})
	if bad != nil {
		return bad
	}
	sort.Strings(keys)
	for _, k := range keys {
		facts.Append(k, values[k])
	}
	return nil
}

// luaString converts a fact value to its criteria-set text form.
func luaString(v lua.LValue) (string, error) {
	switch v := v.(type) {
	case lua.LString:
		return string(v), nil
	case lua.LNumber:
		return strconv.FormatFloat(float64(v), 'f', -1, 64), nil
	case lua.LBool:
		if v {
			return "1", nil
		}
		return "0", nil
	case *lua.LNilType:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported value type %s", v.Type())
	}
}
