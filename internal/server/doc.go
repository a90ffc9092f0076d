// Package server exposes a read-only JSON API over a tracking store so that
// experiments, runs, metric histories and artifact listings can be browsed
// while jobs are writing to the same backend.
package server
