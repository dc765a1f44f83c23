package bridge

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistin/proxyspace-hydra/internal/protocol"
)

func frame(path string, value float64) []byte {
	return []byte(fmt.Sprintf(`{"path":%q,"args":[%v],"value":%v}`, path, value, value))
}

func newTestBridge(t *testing.T, opts Options) *Bridge {
	t.Helper()
	if opts.Dialer == nil {
		opts.Dialer = &fakeDialer{}
	}
	opts.Logger = testLogger()
	b, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(b.Stop)
	return b
}

func TestBridge_SmoothingScenario(t *testing.T) {
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{{Path: "/hydra/level", Key: "level", Smoothing: Float(0.2)}},
	})

	b.HandleFrame(frame("/hydra/level", 1.0))
	assert.InDelta(t, 0.2, b.Get("level", -1), 0.01)

	b.HandleFrame(frame("/hydra/level", 1.0))
	assert.InDelta(t, 0.36, b.Get("level", -1), 0.01)
}

func TestBridge_ClampingScenario(t *testing.T) {
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{{
			Path:      "/hydra/mix",
			Key:       "mix",
			Initial:   0.5,
			Smoothing: Float(0),
			Min:       Float(0.2),
			Max:       Float(0.8),
		}},
	})

	b.HandleFrame(frame("/hydra/mix", 1.5))
	assert.InDelta(t, 0.8, b.Get("mix", -1), 1e-9)

	b.HandleFrame(frame("/hydra/mix", 0.1))
	assert.InDelta(t, 0.2, b.Get("mix", -1), 1e-9)

	b.HandleFrame(frame("/hydra/mix", 0.5))
	assert.InDelta(t, 0.5, b.Get("mix", -1), 1e-9)
}

func TestBridge_InvalidInputIgnored(t *testing.T) {
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{
			{Path: "/a", Key: "a", Initial: 0.3, Smoothing: Float(1)},
			{
				Path: "/b", Key: "b", Initial: 0.3, Smoothing: Float(1),
				// Lets a test push non-finite numbers through the frame path
				Transform: func(f protocol.Frame, v float64, ok bool) (float64, bool) {
					if len(f.Args) > 0 && f.Args[0] == "nan" {
						return math.NaN(), true
					}
					if len(f.Args) > 0 && f.Args[0] == "inf" {
						return math.Inf(1), true
					}
					return v, ok
				},
			},
		},
	})

	var calls []float64
	b.Subscribe("a", func(v float64) { calls = append(calls, v) })
	b.Subscribe("b", func(v float64) { calls = append(calls, v) })
	require.Len(t, calls, 2)

	invalid := []string{
		`{"path":"/a","args":["x"],"value":"x"}`,
		`{"path":"/a","args":[]}`,
		`{"path":"/a"}`,
		`{"path":"/a","args":[true],"value":null}`,
		`{"path":"/b","args":["nan"],"value":null}`,
		`{"path":"/b","args":["inf"],"value":null}`,
		`not json`,
	}
	for _, data := range invalid {
		b.HandleFrame([]byte(data))
	}

	assert.Equal(t, 0.3, b.Get("a", -1))
	assert.Equal(t, 0.3, b.Get("b", -1))
	assert.Len(t, calls, 2, "rejected input must not notify")

	b.HandleFrame(frame("/a", 0.9))
	assert.Equal(t, 0.9, b.Get("a", -1))
	assert.Equal(t, []float64{0.3, 0.3, 0.9}, calls)
}

func TestBridge_ValueFallsBackToFirstNumericArg(t *testing.T) {
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{{Path: "/a", Smoothing: Float(1)}},
	})

	b.HandleFrame([]byte(`{"path":"/a","args":["label",0.7,0.1],"value":null}`))
	assert.Equal(t, 0.7, b.Get("/a", -1), "key defaults to the path")
}

func TestBridge_LegacyAddressKey(t *testing.T) {
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{{Path: "/a", Smoothing: Float(1)}},
	})

	b.HandleFrame([]byte(`{"address":"/a","args":[0.4],"value":0.4}`))
	assert.Equal(t, 0.4, b.Get("/a", -1))
}

func TestBridge_Transform(t *testing.T) {
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{{
			Path:      "/scene",
			Key:       "scene",
			Smoothing: Float(1),
			Transform: func(f protocol.Frame, v float64, ok bool) (float64, bool) {
				if len(f.Args) < 2 {
					return 0, false
				}
				w, ok := protocol.ToFloat(f.Args[1])
				return w * 10, ok
			},
		}},
	})

	b.HandleFrame([]byte(`{"path":"/scene","args":[1,0.5],"value":1}`))
	assert.Equal(t, 5.0, b.Get("scene", -1))

	b.HandleFrame([]byte(`{"path":"/scene","args":[1],"value":1}`))
	assert.Equal(t, 5.0, b.Get("scene", -1), "transform rejection leaves the value alone")
}

func TestBridge_SubscribeImmediateThenUpdates(t *testing.T) {
	var order []string
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{{Path: "/a", Key: "a", Initial: 0.5, Smoothing: Float(1)}},
		OnValue: func(key string, v float64) {
			order = append(order, fmt.Sprintf("any:%s=%v", key, v))
		},
	})

	b.Subscribe("a", func(v float64) { order = append(order, fmt.Sprintf("first=%v", v)) })
	b.Subscribe("a", func(v float64) { order = append(order, fmt.Sprintf("second=%v", v)) })
	assert.Equal(t, []string{"first=0.5", "second=0.5"}, order)

	order = nil
	b.HandleFrame(frame("/a", 1))
	assert.Equal(t, []string{"first=1", "second=1", "any:a=1"}, order)
}

func TestBridge_UnsubscribeIsIdempotent(t *testing.T) {
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{{Path: "/a", Key: "a", Smoothing: Float(1)}},
	})

	var first, second int
	unsubscribe := b.Subscribe("a", func(float64) { first++ })
	b.Subscribe("a", func(float64) { second++ })

	unsubscribe()
	assert.NotPanics(t, unsubscribe)
	assert.NotPanics(t, unsubscribe)

	b.HandleFrame(frame("/a", 1))
	assert.Equal(t, 1, first, "only the immediate call")
	assert.Equal(t, 2, second)

	stopStatus := b.SubscribeStatus(func(Status) {})
	stopStatus()
	assert.NotPanics(t, stopStatus)
}

func TestBridge_UnknownKey(t *testing.T) {
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{{Path: "/a"}},
	})

	called := false
	b.Subscribe("missing", func(float64) { called = true })
	assert.False(t, called)
	assert.Equal(t, 42.0, b.Get("missing", 42))

	// Frames for undeclared paths are ignored
	b.HandleFrame(frame("/other", 1))
	assert.False(t, called)
}

func TestBridge_DuplicatePathLastDeclarationWins(t *testing.T) {
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{
			{Path: "/a", Key: "first", Smoothing: Float(1)},
			{Path: "/a", Key: "second", Smoothing: Float(1)},
		},
	})

	b.HandleFrame(frame("/a", 0.7))
	assert.Equal(t, 0.0, b.Get("first", -1))
	assert.Equal(t, 0.7, b.Get("second", -1))
}

func TestBridge_DuplicateKeyRejected(t *testing.T) {
	_, err := New(Options{
		Logger: testLogger(),
		Endpoints: []Declaration{
			{Path: "/a", Key: "k"},
			{Path: "/b", Key: "k"},
		},
	})
	assert.ErrorIs(t, err, ErrInvalidEndpoint)

	_, err = New(Options{Logger: testLogger(), Endpoints: []Declaration{{Path: "/a", Smoothing: Float(2)}}})
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
}

func TestBridge_Reset(t *testing.T) {
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{
			{Path: "/a", Key: "a", Initial: 0.1, Smoothing: Float(1)},
			{Path: "/b", Key: "b", Initial: 0.2, Smoothing: Float(1)},
		},
	})

	b.HandleFrame(frame("/a", 0.9))
	b.HandleFrame(frame("/b", 0.8))

	var seen []string
	b.Subscribe("a", func(v float64) { seen = append(seen, fmt.Sprintf("a=%v", v)) })
	b.Subscribe("b", func(v float64) { seen = append(seen, fmt.Sprintf("b=%v", v)) })
	seen = nil

	b.Reset()
	assert.Equal(t, []string{"a=0.1", "b=0.2"}, seen)
	assert.Equal(t, map[string]float64{"a": 0.1, "b": 0.2}, b.Values())
}

func TestBridge_CallbacksMayReenter(t *testing.T) {
	b := newTestBridge(t, Options{
		Endpoints: []Declaration{{Path: "/a", Key: "a", Smoothing: Float(1)}},
	})

	var inside []float64
	b.Subscribe("a", func(v float64) {
		inside = append(inside, b.Get("a", -1))
		if v == 1 {
			b.Reset()
		}
	})

	b.HandleFrame(frame("/a", 1))
	assert.Equal(t, []float64{0, 1, 0}, inside)
	assert.Equal(t, 0.0, b.Get("a", -1))
}
