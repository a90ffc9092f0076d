// Package tracking defines the experiment-tracking domain: experiments, runs,
// parameters, metrics and tags, the Store interface every backend implements,
// and the Client that orchestration code uses to talk to a store.
//
// # Lifecycle
//
// A run moves through three states:
//
//	created -> active -> closed
//
// Store.CreateRun returns a run already in RUNNING status (created and active
// collapse into one backend write). A run is closed exactly once, with one of
// FINISHED, FAILED or KILLED. Closed runs reject every further write with
// ErrRunNotActive.
//
// # Parameters and metrics
//
// Parameters are write-once per key: logging a key that already exists on the
// run fails with ErrParamOverwrite, regardless of the value. Metrics form a
// time series keyed by step; logging the same key at several steps keeps every
// point.
//
// # Client
//
// The Client is an explicit tracking context. It owns a Store, the tracking URI
// that store was opened from and the artifact root new experiments store their
// files under. Nothing in this package keeps process-wide state, so several
// clients pointing at different backends can coexist.
package tracking
