// Package bridge adapts push-based, possibly infinite streams to a pull-based
// consumer API.
//
// A Stream preserves producer order, buffers at most one item, and surfaces
// exactly one terminal signal. Cancellation is not an error.
package bridge
