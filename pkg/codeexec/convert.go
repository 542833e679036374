package codeexec

import (
	"encoding/json"
	"errors"
	"math"
	"sort"

	"github.com/germanamz/relay/pkg/modeladapter"
	lua "github.com/yuin/gopher-lua"
)

// abort reports errors that must end the snippet and the run instead of
// surfacing as a Lua error.
func abort(err error) bool {
	var se *modeladapter.ServiceError
	var rl *modeladapter.RateLimitError
	return errors.As(err, &se) || errors.As(err, &rl)
}

// toLua converts a tool result. Values outside the JSON model go through a
// JSON round trip first.
func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case []any:
		tbl := L.CreateTable(len(x), 0)
		for _, e := range x {
			tbl.Append(toLua(L, e))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tbl.RawSetString(k, toLua(L, x[k]))
		}
		return tbl
	}

	b, err := json.Marshal(v)
	if err != nil {
		return lua.LString(err.Error())
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return lua.LString(string(b))
	}
	return toLua(L, generic)
}

// fromLua converts a Lua value into the JSON model. Sequences become
// slices, other tables maps; integral numbers become int.
func fromLua(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LString:
		return string(x)
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int(f)
		}
		return f
	case *lua.LTable:
		if n := x.MaxN(); n > 0 && x.Len() == n && countKeys(x) == n {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, fromLua(x.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		x.ForEach(func(k, val lua.LValue) {
			out[k.String()] = fromLua(val)
		})
		return out
	}
	return nil
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(lua.LValue, lua.LValue) { n++ })
	return n
}
