package protocol

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeOSC(t *testing.T, address string, args ...any) []byte {
	t.Helper()
	data, err := osc.NewMessage(address, args...).MarshalBinary()
	require.NoError(t, err)
	return data
}

func TestDecodePacket(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected []Message
		errorMsg string
	}{
		{
			name: "single float argument",
			data: encodeOSC(t, "/hydra/level", float32(0.5)),
			expected: []Message{
				{Path: "/hydra/level", Args: []any{TypedArg{Tag: TagFloat32, Value: float32(0.5)}}},
			},
		},
		{
			name: "mixed arguments keep order and tags",
			data: encodeOSC(t, "/scene", int32(3), "intro", float32(0.25)),
			expected: []Message{
				{Path: "/scene", Args: []any{
					TypedArg{Tag: TagInt32, Value: int32(3)},
					TypedArg{Tag: TagString, Value: "intro"},
					TypedArg{Tag: TagFloat32, Value: float32(0.25)},
				}},
			},
		},
		{
			name: "no arguments",
			data: encodeOSC(t, "/bang"),
			expected: []Message{
				{Path: "/bang", Args: []any{}},
			},
		},
		{
			name:     "empty datagram",
			data:     []byte{},
			errorMsg: "malformed OSC packet",
		},
		{
			name:     "garbage",
			data:     []byte("not an osc packet"),
			errorMsg: "malformed OSC packet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := DecodePacket(tt.data)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDecodePacket_Bundle(t *testing.T) {
	bundle := osc.NewBundle(time.Now())
	require.NoError(t, bundle.Append(osc.NewMessage("/a", float32(1))))
	require.NoError(t, bundle.Append(osc.NewMessage("/b", "x")))

	data, err := bundle.MarshalBinary()
	require.NoError(t, err)

	messages, err := DecodePacket(data)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "/a", messages[0].Path)
	assert.Equal(t, "/b", messages[1].Path)
	assert.Equal(t, []any{TypedArg{Tag: TagString, Value: "x"}}, messages[1].Args)
}

// rawBundle frames elements as a bundle without validating them
func rawBundle(elements ...[]byte) []byte {
	data := append([]byte("#bundle\x00"), make([]byte, 8)...)
	for _, e := range elements {
		data = binary.BigEndian.AppendUint32(data, uint32(len(e)))
		data = append(data, e...)
	}
	return data
}

func TestDecodePacket_BundleSkipsBadElements(t *testing.T) {
	emptyAddress := []byte("\x00\x00\x00\x00,\x00\x00\x00")
	truncated := []byte("/c\x00\x00,f\x00\x00")

	data := rawBundle(
		encodeOSC(t, "/a", float32(1)),
		emptyAddress,
		rawBundle(truncated, encodeOSC(t, "/b", "x")),
		encodeOSC(t, "/d", int32(4)),
	)

	messages, err := DecodePacket(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyAddress)
	assert.ErrorIs(t, err, ErrMalformedPacket)

	paths := make([]string, 0, len(messages))
	for _, m := range messages {
		paths = append(paths, m.Path)
	}
	assert.Equal(t, []string{"/a", "/b", "/d"}, paths)
}

func TestDecodePacket_BrokenBundleFrame(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		paths []string
	}{
		{name: "short header", data: []byte("#bundle\x00\x00"), paths: nil},
		{name: "wrong tag", data: append([]byte("#bundlx\x00"), make([]byte, 8)...), paths: nil},
		{
			name:  "element size past end keeps earlier messages",
			data:  binary.BigEndian.AppendUint32(rawBundle(encodeOSC(t, "/a")), 64),
			paths: []string{"/a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, err := DecodePacket(tt.data)
			assert.ErrorIs(t, err, ErrMalformedPacket)

			var paths []string
			for _, m := range messages {
				paths = append(paths, m.Path)
			}
			assert.Equal(t, tt.paths, paths)
		})
	}
}

func TestEncodeMessage_RoundTrip(t *testing.T) {
	data, err := EncodeMessage("/of/word", []TypedArg{
		{Tag: TagFloat32, Value: 0.75},
		{Tag: TagString, Value: "hello"},
		{Tag: TagString, Value: true},
	})
	require.NoError(t, err)

	messages, err := DecodePacket(data)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	assert.Equal(t, "/of/word", messages[0].Path)
	assert.Equal(t, []any{
		TypedArg{Tag: TagFloat32, Value: float32(0.75)},
		TypedArg{Tag: TagString, Value: "hello"},
		TypedArg{Tag: TagString, Value: "true"},
	}, messages[0].Args)
}

func TestEncodeMessage_Errors(t *testing.T) {
	_, err := EncodeMessage("", nil)
	assert.ErrorIs(t, err, ErrEmptyAddress)

	_, err = EncodeMessage("/x", []TypedArg{{Tag: "z", Value: 1}})
	assert.ErrorIs(t, err, ErrUnsupportedTag)

	_, err = EncodeMessage("/x", []TypedArg{{Tag: TagFloat32, Value: "nope"}})
	assert.Error(t, err)
}

func TestTag(t *testing.T) {
	tests := []struct {
		value any
		tag   string
	}{
		{float32(1), TagFloat32},
		{float64(1), TagFloat64},
		{int32(1), TagInt32},
		{int64(1), TagInt64},
		{"s", TagString},
		{[]byte{1}, TagBlob},
		{true, TagTrue},
		{false, TagFalse},
		{nil, TagNil},
		{struct{}{}, TagString},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.tag, Tag(tt.value), "value %#v", tt.value)
	}
}

func TestToFloat(t *testing.T) {
	f, ok := ToFloat(int32(7))
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)

	_, ok = ToFloat(true)
	assert.False(t, ok, "booleans are not numeric")

	_, ok = ToFloat("1.5")
	assert.False(t, ok, "numeric strings are not numeric")

	assert.True(t, IsNumeric(float32(0)))
	assert.False(t, IsNumeric(nil))
}
