package wire

import (
	"encoding/binary"
	"maps"
	"slices"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Empty is a message without fields.
type Empty struct{}

func (*Empty) Marshal() ([]byte, error) { return nil, nil }

func (*Empty) Unmarshal(data []byte) error {
	return decode("Empty", data, func(field) error { return nil })
}

// UUID is an identifier sent either as two 64-bit halves or as a string.
type UUID struct {
	Value    uuid.UUID
	AsString bool
}

func (u UUID) encode(e *encoder) {
	if u.AsString {
		e.string(2, u.Value.String())
		return
	}
	e.message(1, func(s *encoder) {
		s.varint(1, binary.BigEndian.Uint64(u.Value[:8]))
		s.varint(2, binary.BigEndian.Uint64(u.Value[8:]))
	})
}

func (u *UUID) decode(b []byte) error {
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			return f.toMessage(func(b []byte) error {
				var msb, lsb uint64
				err := walk(b, func(h field) error {
					switch h.num {
					case 1:
						return h.toUint64(&msb)
					case 2:
						return h.toUint64(&lsb)
					}
					return nil
				})
				binary.BigEndian.PutUint64(u.Value[:8], msb)
				binary.BigEndian.PutUint64(u.Value[8:], lsb)
				u.AsString = false
				return err
			})
		case 2:
			var s string
			if err := f.toString(&s); err != nil {
				return err
			}
			v, err := uuid.Parse(s)
			if err != nil {
				return err
			}
			u.Value = v
			u.AsString = true
		}
		return nil
	})
}

// Position is a commit/prepare pair in the global log.
type Position struct {
	Commit  uint64
	Prepare uint64
}

func (p Position) encode(e *encoder) {
	e.varint(1, p.Commit)
	e.varint(2, p.Prepare)
}

func (p *Position) decode(b []byte) error {
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			return f.toUint64(&p.Commit)
		case 2:
			return f.toUint64(&p.Prepare)
		}
		return nil
	})
}

// StartKind selects the origin of a read or subscription.
type StartKind int

const (
	FromStart StartKind = iota
	FromEnd
	FromRevision
	FromPosition
)

// StreamStart is the origin of a stream read.
type StreamStart struct {
	Kind     StartKind
	Revision uint64
}

// AllStart is the origin of a $all read.
type AllStart struct {
	Kind     StartKind
	Position Position
}

// ExpectedKind is the expected state of a stream before a write.
type ExpectedKind int

const (
	ExpectAny ExpectedKind = iota
	ExpectNoStream
	ExpectStreamExists
	ExpectRevision
)

// Expected is the concurrency check attached to appends and deletes.
type Expected struct {
	Kind     ExpectedKind
	Revision uint64
}

// encode writes the expected-state oneof as revision(2) | no_stream(3) | any(4) | stream_exists(5).
func (x Expected) encode(e *encoder) {
	switch x.Kind {
	case ExpectRevision:
		e.varint(2, x.Revision)
	case ExpectNoStream:
		e.empty(3)
	case ExpectStreamExists:
		e.empty(5)
	default:
		e.empty(4)
	}
}

func (x *Expected) decodeField(f field) (bool, error) {
	switch f.num {
	case 2:
		x.Kind = ExpectRevision
		return true, f.toUint64(&x.Revision)
	case 3:
		x.Kind = ExpectNoStream
		return true, nil
	case 4:
		x.Kind = ExpectAny
		return true, nil
	case 5:
		x.Kind = ExpectStreamExists
		return true, nil
	}
	return false, nil
}

// FilterOptions restricts a $all read or subscription server-side.
type FilterOptions struct {
	// OnEventType filters by event type; otherwise by stream name
	OnEventType bool
	Regex       string
	Prefixes    []string

	// Max is the window searched before a checkpoint is sent; zero means unbounded
	Max                          uint32
	CheckpointIntervalMultiplier uint32
}

func (o FilterOptions) encode(e *encoder) {
	expr := func(x *encoder) {
		x.string(1, o.Regex)
		for _, p := range o.Prefixes {
			x.rawBytes(2, []byte(p))
		}
	}
	if o.OnEventType {
		e.message(2, expr)
	} else {
		e.message(1, expr)
	}
	if o.Max > 0 {
		e.varint(3, uint64(o.Max))
	} else {
		e.empty(4)
	}
	e.uint64(5, uint64(o.CheckpointIntervalMultiplier))
}

func (o *FilterOptions) decode(b []byte) error {
	return walk(b, func(f field) error {
		switch f.num {
		case 1, 2:
			o.OnEventType = f.num == 2
			return f.toMessage(func(b []byte) error {
				return walk(b, func(x field) error {
					switch x.num {
					case 1:
						return x.toString(&o.Regex)
					case 2:
						var p string
						if err := x.toString(&p); err != nil {
							return err
						}
						o.Prefixes = append(o.Prefixes, p)
					}
					return nil
				})
			})
		case 3:
			return f.toUint32(&o.Max)
		case 5:
			return f.toUint32(&o.CheckpointIntervalMultiplier)
		}
		return nil
	})
}

func encodeStreamIdentifier(e *encoder, num protowire.Number, name []byte) {
	e.message(num, func(s *encoder) {
		s.rawBytes(3, name)
	})
}

func decodeStreamIdentifier(f field, dst *[]byte) error {
	return f.toMessage(func(b []byte) error {
		return walk(b, func(s field) error {
			if s.num == 3 {
				return s.toBytes(dst)
			}
			return nil
		})
	})
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
