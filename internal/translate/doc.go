// Package translate turns raw RPC outcomes into the client's typed values.
//
// Error classifies transport failures and server-reported exceptions into the
// esdberr taxonomy. Position, RecordedEvent and Envelope convert wire messages
// into the public event types. Every function here is pure: the same input
// always produces an equal output.
package translate
