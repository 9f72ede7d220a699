package event

import (
	"fmt"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/position"
)

type expectedKind int

const (
	expectAny expectedKind = iota
	expectNoStream
	expectStreamExists
	expectRevision
)

// ExpectedState is the optimistic concurrency check attached to a write.
// The zero value is Any.
type ExpectedState struct {
	kind     expectedKind
	revision position.Revision
}

// Any disables the concurrency check.
func Any() ExpectedState { return ExpectedState{kind: expectAny} }

// NoStream requires that the stream does not exist yet.
func NoStream() ExpectedState { return ExpectedState{kind: expectNoStream} }

// StreamExists requires that the stream exists.
func StreamExists() ExpectedState { return ExpectedState{kind: expectStreamExists} }

// Exactly requires that the last event of the stream has revision r.
func Exactly(r position.Revision) ExpectedState {
	return ExpectedState{kind: expectRevision, revision: r}
}

// IsAny reports whether no check is requested.
func (s ExpectedState) IsAny() bool { return s.kind == expectAny }

// IsNoStream reports whether the stream must not exist.
func (s ExpectedState) IsNoStream() bool { return s.kind == expectNoStream }

// IsStreamExists reports whether the stream must exist.
func (s ExpectedState) IsStreamExists() bool { return s.kind == expectStreamExists }

// Revision returns the exact revision required, if any.
func (s ExpectedState) Revision() (position.Revision, bool) {
	return s.revision, s.kind == expectRevision
}

func (s ExpectedState) String() string {
	switch s.kind {
	case expectNoStream:
		return "no-stream"
	case expectStreamExists:
		return "stream-exists"
	case expectRevision:
		return fmt.Sprintf("%d", uint64(s.revision))
	default:
		return "any"
	}
}

// WriteResult is the outcome of a successful append.
type WriteResult struct {
	// NextExpectedRevision is the revision of the last event now in the stream
	NextExpectedRevision position.Revision

	// Position is the log position of the write, nil when the server sent none
	Position *position.Position
}

// DeleteResult is the outcome of a delete or tombstone.
type DeleteResult struct {
	// Position is the log position of the delete, nil when the server sent none
	Position *position.Position
}
