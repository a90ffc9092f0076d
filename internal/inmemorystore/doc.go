// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the tracking.Store interface.
//
// # Purpose
//
// The store backs the `memory://` tracking URI. It is used by tests and by dry
// runs where nothing should be persisted: every record disappears with the
// process.
//
// # Concurrency Model
//
// A single sync.RWMutex guards all maps. Experiment creation, run closure and
// write-once parameters all need check-then-write atomicity across several
// maps, which per-key sync.Map entries cannot give.
package inmemorystore
