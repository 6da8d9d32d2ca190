package host

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/weftlabs/weft/internal/script"
)

// toStarlark converts a Go value into its Starlark counterpart.
// Supported types: nil, string, int, int64, float64, bool, []string, []any,
// map[string]any, and script.CallFrame, which becomes the two-element tuple
// a dispatch site pushes.
func toStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list, err := toStarlarkSlice(val)
		if err != nil {
			return nil, err
		}
		return starlark.NewList(list), nil

	case script.CallFrame:
		keys, err := toStarlarkSlice(val.Keys)
		if err != nil {
			return nil, fmt.Errorf("frame keys: %w", err)
		}
		args, err := toStarlarkSlice(val.Args)
		if err != nil {
			return nil, fmt.Errorf("frame args: %w", err)
		}
		return starlark.Tuple{starlark.NewList(keys), starlark.NewList(args)}, nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func toStarlarkSlice(vals []any) ([]starlark.Value, error) {
	out := make([]starlark.Value, len(vals))
	for i, v := range vals {
		sv, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = sv
	}
	return out, nil
}

// toGo converts a Starlark value back into a Go value.
// Returns: nil, string, int64, float64, bool, []any, or map[string]any.
func toGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			// Integers beyond int64 round-trip as their decimal text.
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *starlark.List:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := toGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case starlark.Tuple:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := toGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := toGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	default:
		return val.String(), nil
	}
}
