package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is a protocol message that knows its own protobuf encoding.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

// DecodeError reports a payload that is not a valid encoding of the expected message.
type DecodeError struct {
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: cannot decode %s: %v", e.Message, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ErrNotAMessage is returned by Codec for values that do not implement Message.
var ErrNotAMessage = errors.New("value does not implement wire.Message")

// CodecName is the content-subtype announced on every call.
const CodecName = "proto"

// Codec adapts Message to grpc's encoding.Codec. It is passed per call with
// grpc.ForceCodec and per server with grpc.ForceServerCodec; it is never
// registered globally.
type Codec struct{}

// Marshal encodes v.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotAMessage, v)
	}
	return m.Marshal()
}

// Unmarshal decodes data into v.
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotAMessage, v)
	}
	return m.Unmarshal(data)
}

// Name returns CodecName.
func (Codec) Name() string {
	return CodecName
}

type encoder struct {
	buf []byte
}

func (e *encoder) varint(num protowire.Number, v uint64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *encoder) uint64(num protowire.Number, v uint64) {
	if v != 0 {
		e.varint(num, v)
	}
}

func (e *encoder) int32(num protowire.Number, v int32) {
	if v != 0 {
		e.varint(num, uint64(int64(v)))
	}
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if v {
		e.varint(num, 1)
	}
}

func (e *encoder) rawBytes(num protowire.Number, v []byte) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	if len(v) > 0 {
		e.rawBytes(num, v)
	}
}

func (e *encoder) string(num protowire.Number, v string) {
	if v != "" {
		e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
		e.buf = protowire.AppendString(e.buf, v)
	}
}

// message encodes a nested message, present even when empty.
func (e *encoder) message(num protowire.Number, fn func(*encoder)) {
	var sub encoder
	fn(&sub)
	e.rawBytes(num, sub.buf)
}

func (e *encoder) empty(num protowire.Number) {
	e.rawBytes(num, nil)
}

func (e *encoder) stringMap(num protowire.Number, m map[string]string) {
	for _, k := range sortedKeys(m) {
		v := m[k]
		e.message(num, func(entry *encoder) {
			entry.string(1, k)
			entry.string(2, v)
		})
	}
}

type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	b   []byte
}

func (f field) mismatch(want protowire.Type) error {
	return fmt.Errorf("field %d: wire type %d, want %d", f.num, f.typ, want)
}

func (f field) toUint64(dst *uint64) error {
	if f.typ != protowire.VarintType {
		return f.mismatch(protowire.VarintType)
	}
	*dst = f.u
	return nil
}

func (f field) toInt64(dst *int64) error {
	var u uint64
	if err := f.toUint64(&u); err != nil {
		return err
	}
	*dst = int64(u)
	return nil
}

func (f field) toInt32(dst *int32) error {
	var u uint64
	if err := f.toUint64(&u); err != nil {
		return err
	}
	*dst = int32(u)
	return nil
}

func (f field) toUint32(dst *uint32) error {
	var u uint64
	if err := f.toUint64(&u); err != nil {
		return err
	}
	*dst = uint32(u)
	return nil
}

func (f field) toBool(dst *bool) error {
	var u uint64
	if err := f.toUint64(&u); err != nil {
		return err
	}
	*dst = u != 0
	return nil
}

func (f field) toBytes(dst *[]byte) error {
	if f.typ != protowire.BytesType {
		return f.mismatch(protowire.BytesType)
	}
	*dst = append([]byte(nil), f.b...)
	return nil
}

func (f field) toString(dst *string) error {
	if f.typ != protowire.BytesType {
		return f.mismatch(protowire.BytesType)
	}
	*dst = string(f.b)
	return nil
}

// toMessage hands the nested payload to fn.
func (f field) toMessage(fn func([]byte) error) error {
	if f.typ != protowire.BytesType {
		return f.mismatch(protowire.BytesType)
	}
	return fn(f.b)
}

func (f field) toMapEntry(dst map[string]string) error {
	return f.toMessage(func(b []byte) error {
		var k, v string
		err := walk(b, func(e field) error {
			switch e.num {
			case 1:
				return e.toString(&k)
			case 2:
				return e.toString(&v)
			}
			return nil
		})
		if err != nil {
			return err
		}
		dst[k] = v
		return nil
	})
}

// walk calls fn for every field of b in order. Unknown fields are handed to
// fn as well; callers ignore the numbers they do not know.
func walk(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func decode(name string, b []byte, fn func(field) error) error {
	if err := walk(b, fn); err != nil {
		return &DecodeError{Message: name, Err: err}
	}
	return nil
}
