package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// Frame is the JSON text frame sent to socket clients, one per routed message.
// Value is the first numeric argument, or null when there is none.
type Frame struct {
	Path  string   `json:"path"`
	Args  []any    `json:"args"`
	Value *float64 `json:"value"`
}

// NewFrame builds a frame from normalized arguments. NaN and infinities have no
// JSON form, so they are carried as null.
func NewFrame(path string, args []any, value *float64) Frame {
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = finiteOrNil(arg)
	}
	if value != nil && !IsFinite(*value) {
		value = nil
	}
	return Frame{Path: path, Args: out, Value: value}
}

// IsFinite reports whether f is neither NaN nor an infinity
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteOrNil(v any) any {
	switch t := v.(type) {
	case float64:
		if !IsFinite(t) {
			return nil
		}
	case float32:
		if !IsFinite(float64(t)) {
			return nil
		}
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = finiteOrNil(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = finiteOrNil(e)
		}
		return out
	}
	return v
}

// Marshal encodes the frame as JSON. Non-finite floats are rejected by encoding/json.
func (f Frame) Marshal() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame for %s: %w", f.Path, err)
	}
	return data, nil
}

// wireFrame accepts both the current "path" key and the legacy "address" key
type wireFrame struct {
	Path    string `json:"path"`
	Address string `json:"address"`
	Args    []any  `json:"args"`
	Value   any    `json:"value"`
}

// UnmarshalFrame decodes a JSON frame. A non-numeric "value" decodes as nil.
func UnmarshalFrame(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("failed to parse frame: %w", err)
	}

	path := w.Path
	if path == "" {
		path = w.Address
	}
	if path == "" {
		return Frame{}, fmt.Errorf("failed to parse frame: %w", ErrEmptyAddress)
	}

	frame := Frame{Path: path, Args: w.Args}
	if f, ok := ToFloat(w.Value); ok {
		frame.Value = &f
	}
	return frame, nil
}

// Numeric returns the frame's value when set, otherwise the first numeric argument
func (f Frame) Numeric() (float64, bool) {
	if f.Value != nil {
		return *f.Value, true
	}
	for _, arg := range f.Args {
		if v, ok := ToFloat(arg); ok {
			return v, true
		}
	}
	return 0, false
}

// String returns a human-readable representation of the frame
func (f Frame) String() string {
	if f.Value == nil {
		return fmt.Sprintf("Frame{Path:%s, Args:%v, Value:null}", f.Path, f.Args)
	}
	return fmt.Sprintf("Frame{Path:%s, Args:%v, Value:%g}", f.Path, f.Args, *f.Value)
}
