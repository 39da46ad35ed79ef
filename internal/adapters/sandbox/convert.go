package sandbox

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	lua "github.com/Shopify/go-lua"
)

const maxTableDepth = 32

// pushValue pushes a JSON-shaped Go value onto the Lua stack
func pushValue(l *lua.State, v any) {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case string:
		l.PushString(x)
	case float64:
		l.PushNumber(x)
	case float32:
		l.PushNumber(float64(x))
	case int:
		l.PushInteger(x)
	case int32:
		l.PushInteger(int(x))
	case int64:
		l.PushNumber(float64(x))
	case uint64:
		l.PushNumber(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			l.PushString(x.String())
			return
		}
		l.PushNumber(f)
	case map[string]any:
		l.CreateTable(0, len(x))
		for k, val := range x {
			pushValue(l, val)
			l.SetField(-2, k)
		}
	case []any:
		l.CreateTable(len(x), 0)
		for i, val := range x {
			pushValue(l, val)
			l.RawSetInt(-2, i+1)
		}
	default:
		// Structs, typed slices and raw JSON go through their JSON form
		raw, err := json.Marshal(x)
		if err != nil {
			l.PushNil()
			return
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			l.PushNil()
			return
		}
		pushValue(l, generic)
	}
}

// toValue converts the Lua value at index into a JSON-shaped Go value.
// Tables whose keys are exactly 1..n become slices, other tables maps.
func toValue(l *lua.State, index int) any {
	return toValueDepth(l, l.AbsIndex(index), 0)
}

func toValueDepth(l *lua.State, index, depth int) any {
	switch l.TypeOf(index) {
	case lua.TypeNil, lua.TypeNone:
		return nil
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return n
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeTable:
		if depth >= maxTableDepth {
			return nil
		}
		return tableValue(l, index, depth)
	default:
		return l.TypeOf(index).String()
	}
}

func tableValue(l *lua.State, index, depth int) any {
	fields := map[string]any{}
	items := map[int]any{}
	l.PushNil()
	for l.Next(index) {
		value := toValueDepth(l, l.AbsIndex(-1), depth+1)
		switch l.TypeOf(-2) {
		case lua.TypeNumber:
			n, _ := l.ToNumber(-2)
			if n >= 1 && n == math.Trunc(n) {
				items[int(n)] = value
			} else {
				fields[strconv.FormatFloat(n, 'f', -1, 64)] = value
			}
		case lua.TypeString:
			k, _ := l.ToString(-2)
			fields[k] = value
		}
		l.Pop(1)
	}

	if len(fields) == 0 && len(items) > 0 && isSequence(items) {
		out := make([]any, len(items))
		for i, v := range items {
			out[i-1] = v
		}
		return out
	}
	for i, v := range items {
		fields[strconv.Itoa(i)] = v
	}
	return fields
}

func isSequence(items map[int]any) bool {
	keys := make([]int, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for i, k := range keys {
		if k != i+1 {
			return false
		}
	}
	return true
}

// displayValue renders the value at index the way print shows it
func displayValue(l *lua.State, index int) string {
	index = l.AbsIndex(index)
	switch l.TypeOf(index) {
	case lua.TypeNil, lua.TypeNone:
		return "nil"
	case lua.TypeBoolean:
		return strconv.FormatBool(l.ToBoolean(index))
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return strconv.FormatFloat(n, 'g', 14, 64)
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeTable:
		raw, err := json.Marshal(toValue(l, index))
		if err != nil {
			return "table"
		}
		return string(raw)
	default:
		return l.TypeOf(index).String()
	}
}
