package bridge

import (
	"errors"
	"fmt"
	"math"

	"github.com/twistin/proxyspace-hydra/internal/protocol"
)

// DefaultSmoothing is applied when a declaration leaves Smoothing unset
const DefaultSmoothing = 0.2

// ErrInvalidEndpoint is returned for declarations that cannot be bridged
var ErrInvalidEndpoint = errors.New("invalid endpoint declaration")

// TransformFunc derives the update value from a frame. It receives the value
// the bridge extracted (ok is false when the frame carried no number) and
// returns the value to apply, or false to ignore the frame.
type TransformFunc func(frame protocol.Frame, value float64, ok bool) (float64, bool)

// Declaration describes one endpoint
type Declaration struct {
	Path      string   // control path, required
	Key       string   // subscription key, defaults to Path
	Initial   float64  // value at construction and after Reset
	Smoothing *float64 // EMA weight in [0,1]; nil means DefaultSmoothing. 0 jumps straight to the clamped input rather than holding the value.
	Min       *float64
	Max       *float64
	Transform TransformFunc
}

// Float returns a pointer to v, for optional declaration fields
func Float(v float64) *float64 {
	return &v
}

type endpoint struct {
	key       string
	path      string
	initial   float64
	smoothing float64
	min       *float64
	max       *float64
	transform TransformFunc

	value float64
}

func newEndpoint(d Declaration) (*endpoint, error) {
	if d.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidEndpoint)
	}

	key := d.Key
	if key == "" {
		key = d.Path
	}

	if !protocol.IsFinite(d.Initial) {
		return nil, fmt.Errorf("%w: %s: initial value must be finite", ErrInvalidEndpoint, key)
	}

	smoothing := DefaultSmoothing
	if d.Smoothing != nil {
		smoothing = *d.Smoothing
		if math.IsNaN(smoothing) || smoothing < 0 || smoothing > 1 {
			return nil, fmt.Errorf("%w: %s: smoothing must be between 0 and 1, got %v", ErrInvalidEndpoint, key, smoothing)
		}
	}

	if (d.Min != nil && !protocol.IsFinite(*d.Min)) || (d.Max != nil && !protocol.IsFinite(*d.Max)) {
		return nil, fmt.Errorf("%w: %s: bounds must be finite", ErrInvalidEndpoint, key)
	}
	if d.Min != nil && d.Max != nil && *d.Min > *d.Max {
		return nil, fmt.Errorf("%w: %s: min %v exceeds max %v", ErrInvalidEndpoint, key, *d.Min, *d.Max)
	}

	return &endpoint{
		key:       key,
		path:      d.Path,
		initial:   d.Initial,
		smoothing: smoothing,
		min:       d.Min,
		max:       d.Max,
		transform: d.Transform,
		value:     d.Initial,
	}, nil
}

// clamp bounds v by whichever of min and max are set
func (e *endpoint) clamp(v float64) float64 {
	if e.min != nil && v < *e.min {
		v = *e.min
	}
	if e.max != nil && v > *e.max {
		v = *e.max
	}
	return v
}

// apply folds a raw input into the current value and reports whether it was accepted
func (e *endpoint) apply(raw float64) bool {
	if !protocol.IsFinite(raw) {
		return false
	}

	target := e.clamp(raw)
	if e.smoothing == 0 {
		e.value = target
		return true
	}

	// Clamp again in case the previous value sat outside the bounds
	e.value = e.clamp(e.value + e.smoothing*(target-e.value))
	return true
}

// extract returns the update value carried by a frame
func (e *endpoint) extract(frame protocol.Frame) (float64, bool) {
	v, ok := frame.Numeric()
	if e.transform != nil {
		return e.transform(frame, v, ok)
	}
	return v, ok
}
