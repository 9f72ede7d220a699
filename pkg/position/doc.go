// Package position provides the value types used to describe where a read or
// subscription starts and where it can be resumed.
//
// This package defines:
//   - Position: a location in the global event log (commit + prepare offsets)
//   - Revision: the index of an event inside a single stream
//   - Direction: forwards or backwards iteration
//   - Cursor: a closed variant over start, end and a specified Revision or Position
//
// Every type is an immutable value. Nothing in this package performs I/O.
//
// Example usage:
//
//	// Read a stream from the beginning
//	from := position.Start[position.Revision]()
//
//	// Read $all backwards from the tail
//	tail := position.End[position.Position]()
//
//	// Resume a subscription after the last processed event
//	resume := position.At(lastSeen, position.Forwards)
package position
