// Package orchestrator runs one job end to end: it resolves the experiment,
// opens a tracked run, prepares the run's output directory, logs the
// configuration and drives the training loop inside the run's lifetime.
package orchestrator
