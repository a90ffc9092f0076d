// Package config defines the format-agnostic experiment configuration: an
// immutable Tree of cty values, the Override syntax used on the command line,
// the typed Train view the orchestrator consumes, and the Loader interface
// that format-specific packages (such as internal/hcl) implement.
//
// A configuration is resolved fresh for every job of a sweep and never
// mutated afterwards; every Tree operation returns a new Tree.
package config
