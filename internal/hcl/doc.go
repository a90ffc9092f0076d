// Package hcl provides the HCL implementation of config.Loader. It reads a
// primary configuration file, composes the option files its `defaults`
// attribute selects, and applies command-line overrides on top.
package hcl
