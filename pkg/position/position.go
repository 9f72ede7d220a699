package position

import (
	"cmp"
	"fmt"
)

// Position identifies a physical location in the global event log.
// Positions are ordered by Commit first and Prepare second.
type Position struct {
	// Commit is the commit offset of the transaction containing the event
	Commit uint64

	// Prepare is the prepare offset of the event inside that transaction
	Prepare uint64
}

// New creates a Position from commit and prepare offsets.
func New(commit, prepare uint64) Position {
	return Position{Commit: commit, Prepare: prepare}
}

// Compare returns -1, 0 or +1 depending on whether p sorts before, equal to or after other.
func (p Position) Compare(other Position) int {
	if c := cmp.Compare(p.Commit, other.Commit); c != 0 {
		return c
	}
	return cmp.Compare(p.Prepare, other.Prepare)
}

// Less reports whether p sorts strictly before other.
func (p Position) Less(other Position) bool {
	return p.Compare(other) < 0
}

// String returns the position in "C:<commit>/P:<prepare>" form.
func (p Position) String() string {
	return fmt.Sprintf("C:%d/P:%d", p.Commit, p.Prepare)
}

// Revision is the zero-based index of an event within its stream.
type Revision uint64

// String returns the revision as a decimal number.
func (r Revision) String() string {
	return fmt.Sprintf("%d", uint64(r))
}

// Direction determines the iteration order of a read.
type Direction int

const (
	// Forwards reads from older to newer events
	Forwards Direction = iota

	// Backwards reads from newer to older events
	Backwards
)

func (d Direction) String() string {
	switch d {
	case Forwards:
		return "Forwards"
	case Backwards:
		return "Backwards"
	default:
		return "Unknown"
	}
}
