// Package memserver is an in-memory event store speaking the same gRPC
// services as a real node. It backs the client's integration tests and the
// development server.
//
// Positions in the log are a single counter: every event has commit ==
// prepare, starting at 1. Link resolution is not performed.
package memserver
