package loader

import (
	"fmt"
	"io/fs"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/responserules/engine/state"
)

// LoadFacts runs a Lua facts script from fsys and returns the facts it
// declared. The Lua VM is discarded afterwards.
func LoadFacts(fsys fs.FS, name string) (*state.Facts, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading facts script %s: %w", name, err)
	}
	return LoadFactsString(name, string(data))
}

// LoadFactsString runs src as a Lua facts script. Facts come from calls to
// Fact(name, value[, weight]) and, if the chunk returns a table, from its
// key/value pairs in sorted key order.
func LoadFactsString(name, src string) (*state.Facts, error) {
	// Create sandboxed VM.
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	openSafeLibs(L)
	sandbox(L)

	facts := state.NewFacts()
	registerAPI(L, facts)

	fn, err := L.LoadString(src)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", name, err)
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return nil, fmt.Errorf("executing %s: %w", name, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	if tbl, ok := ret.(*lua.LTable); ok {
		if err := appendTable(facts, tbl); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return facts, nil
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	// Base library (print, type, tostring, tonumber, pairs, ipairs, etc.)
	lua.OpenBase(L)
	// Table library (table.insert, table.sort, etc.)
	lua.OpenTable(L)
	// String library (string.format, string.sub, etc.)
	lua.OpenString(L)
	// Math library (math.floor, math.max, etc.)
	lua.OpenMath(L)
}

// sandbox removes dangerous globals and functions.
func sandbox(L *lua.LState) {
	dangerous := []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage",
	}
	for _, name := range dangerous {
		L.SetGlobal(name, lua.LNil)
	}

	// Facts must not depend on a script-controlled seed.
	if mathTbl := L.GetGlobal("math"); mathTbl != lua.LNil {
		if tbl, ok := mathTbl.(*lua.LTable); ok {
			tbl.RawSetString("randomseed", lua.LNil)
			tbl.RawSetString("random", lua.LNil)
		}
	}
}
