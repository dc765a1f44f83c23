package relay

import (
	"fmt"

	"github.com/twistin/proxyspace-hydra/internal/protocol"
)

// Normalize flattens arguments into plain values. Tagged descriptors are replaced by
// their value; descriptor maps only when they carry a "value" key. Everything else,
// including nil and maps without "value", passes through unchanged.
func Normalize(args []any) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = normalizeArg(arg)
	}
	return out
}

func normalizeArg(arg any) any {
	switch a := arg.(type) {
	case protocol.TypedArg:
		return a.Value
	case *protocol.TypedArg:
		if a == nil {
			return arg
		}
		return a.Value
	case map[string]any:
		if v, ok := a["value"]; ok {
			return v
		}
		return arg
	default:
		return arg
	}
}

// PrimaryValue returns the first finite numeric normalized argument, or nil if there is none
func PrimaryValue(normalized []any) *float64 {
	for _, v := range normalized {
		if f, ok := protocol.ToFloat(v); ok && protocol.IsFinite(f) {
			return &f
		}
	}
	return nil
}

// Retag tags normalized arguments for the mirror peer: numbers become floats,
// strings stay strings and anything else is stringified.
func Retag(normalized []any) []protocol.TypedArg {
	out := make([]protocol.TypedArg, len(normalized))
	for i, v := range normalized {
		switch t := v.(type) {
		case string:
			out[i] = protocol.TypedArg{Tag: protocol.TagString, Value: t}
		default:
			if f, ok := protocol.ToFloat(v); ok {
				out[i] = protocol.TypedArg{Tag: protocol.TagFloat32, Value: f}
				continue
			}
			out[i] = protocol.TypedArg{Tag: protocol.TagString, Value: stringify(v)}
		}
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
