package position

import "fmt"

// Offset is the set of values a Cursor can point at.
type Offset interface {
	Revision | Position
}

type cursorKind int

const (
	kindStart cursorKind = iota
	kindEnd
	kindSpecified
)

// Cursor is the caller-specified starting point of a read or subscription.
// It is exactly one of start, end or a specified offset.
//
// The zero value is the start cursor.
type Cursor[T Offset] struct {
	kind      cursorKind
	value     T
	direction Direction
	explicit  bool
}

// Start returns a cursor at the beginning of the log or stream.
func Start[T Offset]() Cursor[T] {
	return Cursor[T]{kind: kindStart}
}

// End returns a cursor at the tail of the log or stream. For live
// subscriptions it means "only events written from now on".
func End[T Offset]() Cursor[T] {
	return Cursor[T]{kind: kindEnd}
}

// At returns a cursor at the given offset. The direction is part of the
// cursor and is sent to the server verbatim.
func At[T Offset](value T, direction Direction) Cursor[T] {
	return Cursor[T]{kind: kindSpecified, value: value, direction: direction, explicit: true}
}

// WithDirection returns a copy of the cursor with an explicit direction,
// overriding the default applied to start and end cursors.
func (c Cursor[T]) WithDirection(d Direction) Cursor[T] {
	c.direction = d
	c.explicit = true
	return c
}

// IsStart reports whether the cursor points at the beginning.
func (c Cursor[T]) IsStart() bool {
	return c.kind == kindStart
}

// IsEnd reports whether the cursor points at the tail.
func (c Cursor[T]) IsEnd() bool {
	return c.kind == kindEnd
}

// Value returns the specified offset. ok is false for start and end cursors.
func (c Cursor[T]) Value() (value T, ok bool) {
	if c.kind != kindSpecified {
		var zero T
		return zero, false
	}
	return c.value, true
}

// Direction returns the direction carried by the cursor. ok is false when
// no direction was set explicitly and the caller should apply its default.
func (c Cursor[T]) Direction() (d Direction, ok bool) {
	return c.direction, c.explicit
}

func (c Cursor[T]) String() string {
	switch c.kind {
	case kindStart:
		return "Start"
	case kindEnd:
		return "End"
	default:
		return fmt.Sprintf("At(%v, %s)", c.value, c.direction)
	}
}
