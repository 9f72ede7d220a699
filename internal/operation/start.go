package operation

import (
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
)

// StreamStart translates a stream cursor into the wire start and direction.
//
// Start reads forwards and end reads backwards unless the cursor carries an
// explicit direction. A specified revision is sent verbatim with the
// cursor's direction. Live subscriptions always go forwards; from the end
// they receive only events written after the subscription starts.
func StreamStart(c position.Cursor[position.Revision], live bool) (wire.StreamStart, wire.ReadDirection) {
	var start wire.StreamStart
	switch {
	case c.IsStart():
		start.Kind = wire.FromStart
	case c.IsEnd():
		start.Kind = wire.FromEnd
	default:
		rev, _ := c.Value()
		start = wire.StreamStart{Kind: wire.FromRevision, Revision: uint64(rev)}
	}

	if live {
		return start, wire.Forwards
	}
	return start, readDirection(c)
}

// AllStart translates a $all cursor the same way StreamStart does.
func AllStart(c position.Cursor[position.Position], live bool) (wire.AllStart, wire.ReadDirection) {
	var start wire.AllStart
	switch {
	case c.IsStart():
		start.Kind = wire.FromStart
	case c.IsEnd():
		start.Kind = wire.FromEnd
	default:
		p, _ := c.Value()
		start = wire.AllStart{Kind: wire.FromPosition, Position: wire.Position{Commit: p.Commit, Prepare: p.Prepare}}
	}

	if live {
		return start, wire.Forwards
	}
	return start, readDirection(c)
}

func readDirection[T position.Offset](c position.Cursor[T]) wire.ReadDirection {
	d, explicit := c.Direction()
	if !explicit {
		if c.IsEnd() {
			return wire.Backwards
		}
		return wire.Forwards
	}
	if d == position.Backwards {
		return wire.Backwards
	}
	return wire.Forwards
}
