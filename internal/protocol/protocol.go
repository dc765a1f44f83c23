package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hypebeast/go-osc/osc"
)

// OSC type tags
const (
	TagFloat32 = "f"
	TagFloat64 = "d"
	TagInt32   = "i"
	TagInt64   = "h"
	TagString  = "s"
	TagBlob    = "b"
	TagTrue    = "T"
	TagFalse   = "F"
	TagNil     = "N"
	TagTimetag = "t"
)

var (
	// ErrMalformedPacket is returned when a datagram is not a valid OSC packet
	ErrMalformedPacket = errors.New("malformed OSC packet")
	// ErrEmptyAddress is returned for messages without a control path
	ErrEmptyAddress = errors.New("empty OSC address")
	// ErrUnsupportedTag is returned when encoding an argument with an unknown tag
	ErrUnsupportedTag = errors.New("unsupported OSC type tag")
)

// TypedArg is an argument descriptor carrying an explicit OSC type tag.
// Layout mirrors the metadata form {type, value} used by OSC tooling.
type TypedArg struct {
	Tag   string `json:"type"`
	Value any    `json:"value"`
}

// Message is a decoded OSC message: a control path plus ordered arguments.
// Args hold bare primitives, TypedArg descriptors or descriptor maps.
type Message struct {
	Path string
	Args []any
}

const (
	bundleTag       = "#bundle\x00"
	bundleHeaderLen = len(bundleTag) + 8 // tag + timetag
)

// DecodePacket parses an OSC message or bundle. Bundles are flattened
// depth-first so the returned messages keep their packet order.
//
// A bad element inside a bundle drops only that element: the remaining
// messages are returned together with an error describing what was skipped.
func DecodePacket(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty datagram", ErrMalformedPacket)
	}

	if data[0] == '#' {
		var messages []Message
		skipped, err := decodeBundle(data, &messages)
		if err != nil {
			return messages, err
		}
		if len(skipped) > 0 {
			return messages, fmt.Errorf("skipped %d bundle element(s): %w", len(skipped), errors.Join(skipped...))
		}
		return messages, nil
	}

	msg, err := decodeMessage(data)
	if err != nil {
		return nil, err
	}
	return []Message{msg}, nil
}

// decodeBundle walks the size-prefixed elements of a bundle. Element errors are
// collected and returned as skipped; a broken bundle frame is returned as err.
func decodeBundle(data []byte, out *[]Message) (skipped []error, err error) {
	if len(data) < bundleHeaderLen || string(data[:len(bundleTag)]) != bundleTag {
		return nil, fmt.Errorf("%w: invalid bundle header", ErrMalformedPacket)
	}

	offset := bundleHeaderLen
	for offset < len(data) {
		if len(data)-offset < 4 {
			return skipped, fmt.Errorf("%w: truncated bundle element size", ErrMalformedPacket)
		}
		size := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if size > len(data)-offset {
			return skipped, fmt.Errorf("%w: bundle element of %d bytes exceeds packet", ErrMalformedPacket, size)
		}
		element := data[offset : offset+size]
		offset += size

		if len(element) > 0 && element[0] == '#' {
			nested, err := decodeBundle(element, out)
			skipped = append(skipped, nested...)
			if err != nil {
				skipped = append(skipped, err)
			}
			continue
		}

		msg, err := decodeMessage(element)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		*out = append(*out, msg)
	}

	return skipped, nil
}

// decodeMessage parses a single OSC message
func decodeMessage(data []byte) (Message, error) {
	if len(data) == 0 || data[0] == 0 {
		return Message{}, ErrEmptyAddress
	}

	packet, err := osc.ParsePacket(string(data))
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	m, ok := packet.(*osc.Message)
	if !ok {
		return Message{}, fmt.Errorf("%w: unknown packet type %T", ErrMalformedPacket, packet)
	}
	return fromOSC(m)
}

func fromOSC(m *osc.Message) (Message, error) {
	if m == nil || m.Address == "" {
		return Message{}, ErrEmptyAddress
	}

	args := make([]any, 0, len(m.Arguments))
	for _, a := range m.Arguments {
		args = append(args, TypedArg{Tag: Tag(a), Value: a})
	}

	return Message{Path: m.Address, Args: args}, nil
}

// EncodeMessage encodes an outbound OSC message with explicitly tagged arguments
func EncodeMessage(path string, args []TypedArg) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyAddress
	}

	msg := osc.NewMessage(path)
	for i, arg := range args {
		v, err := coerce(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		msg.Append(v)
	}

	data, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode OSC message %s: %w", path, err)
	}
	return data, nil
}

// coerce converts a tagged argument into the Go type go-osc writes for that tag
func coerce(arg TypedArg) (any, error) {
	switch arg.Tag {
	case TagFloat32:
		f, ok := ToFloat(arg.Value)
		if !ok {
			return nil, fmt.Errorf("value %v is not numeric for tag %q", arg.Value, arg.Tag)
		}
		return float32(f), nil
	case TagFloat64:
		f, ok := ToFloat(arg.Value)
		if !ok {
			return nil, fmt.Errorf("value %v is not numeric for tag %q", arg.Value, arg.Tag)
		}
		return f, nil
	case TagInt32:
		f, ok := ToFloat(arg.Value)
		if !ok {
			return nil, fmt.Errorf("value %v is not numeric for tag %q", arg.Value, arg.Tag)
		}
		return int32(f), nil
	case TagInt64:
		f, ok := ToFloat(arg.Value)
		if !ok {
			return nil, fmt.Errorf("value %v is not numeric for tag %q", arg.Value, arg.Tag)
		}
		return int64(f), nil
	case TagString:
		if s, ok := arg.Value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(arg.Value), nil
	case TagBlob:
		switch b := arg.Value.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, fmt.Errorf("value of type %T is not a blob", arg.Value)
	case TagTrue:
		return true, nil
	case TagFalse:
		return false, nil
	case TagNil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTag, arg.Tag)
	}
}

// Tag returns the OSC type tag for a Go value. Unknown types map to the string tag.
func Tag(v any) string {
	switch t := v.(type) {
	case float32:
		return TagFloat32
	case float64:
		return TagFloat64
	case int32:
		return TagInt32
	case int64:
		return TagInt64
	case int, int8, int16, uint8, uint16, uint32, uint, uint64:
		return TagInt32
	case string:
		return TagString
	case []byte:
		return TagBlob
	case bool:
		if t {
			return TagTrue
		}
		return TagFalse
	case nil:
		return TagNil
	case osc.Timetag, *osc.Timetag:
		return TagTimetag
	default:
		return TagString
	}
}

// IsNumeric reports whether v holds a number. Booleans are not numbers.
func IsNumeric(v any) bool {
	_, ok := ToFloat(v)
	return ok
}

// ToFloat converts any Go numeric value to float64
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
