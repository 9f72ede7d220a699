// Package checkpoint stores the last processed $all position of a
// subscriber so that it can resume after a restart.
//
// Two stores are provided: MemoryStore for tests and short-lived processes,
// and BoltStore, which keeps checkpoints in a bbolt file.
package checkpoint
