// Package app is the composition root. It turns a Config into a running
// system: it resolves the base directory, locates and opens the tracking
// backend, expands sweeps into jobs and launches them, or serves the
// tracking API. It is decoupled from any specific entrypoint like a CLI.
package app
